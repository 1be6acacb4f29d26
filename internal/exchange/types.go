package exchange

import (
	"time"

	"github.com/google/uuid"
)

type GoodCategory string

const (
	// CategoryVirtual goods are delivered to a game account and need game
	// credentials (stoken, game UID) to redeem.
	CategoryVirtual GoodCategory = "virtual"
	// CategoryPhysical goods are shipped and need a configured address.
	CategoryPhysical GoodCategory = "physical"
)

// Good is one mall listing. Time is the instant it becomes purchasable.
type Good struct {
	ID       string
	Name     string
	Category GoodCategory
	Game     string // game_biz identifier, e.g. "hk4e_cn"; empty for community goods
	Time     time.Time
}

// Account holds the community-account credentials an attempt redeems with.
type Account struct {
	UID      string
	Cookie   string
	Stoken   string
	StokenV2 bool
	MID      string
}

// GameRole identifies the in-game account a virtual good is delivered to.
type GameRole struct {
	GameUID  string
	Region   string
	Nickname string
}

// Address is a shipping destination for physical goods.
type Address struct {
	ID     string
	Detail string
}

// Plan binds one account to one good. Immutable once handed to the engine;
// the engine references it, configuration owns it.
type Plan struct {
	ID       uuid.UUID
	Account  Account
	Good     Good
	GameRole *GameRole // nil unless the good is an in-game item
	Address  *Address  // nil unless the good is shipped
}

// TargetTime is the absolute instant the plan's attempt should fire.
func (p Plan) TargetTime() time.Time { return p.Good.Time }

// Result pairs a plan with its terminal status and completion time. Built
// exactly once per attempt and never mutated afterwards.
type Result struct {
	Plan        Plan
	Status      Status
	CompletedAt time.Time
}
