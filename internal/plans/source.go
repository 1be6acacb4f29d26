package plans

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/example/goods-scheduler/internal/exchange"
)

// Source yields the ordered set of exchange plans to schedule. The engine
// reads it once at initialization and never mutates or persists it.
type Source interface {
	Plans(ctx context.Context) ([]exchange.Plan, error)
}

// FileSource reads plans from a JSON file, the tool's config-file-driven
// mode.
type FileSource struct {
	Path string
}

func (f FileSource) Plans(ctx context.Context) ([]exchange.Plan, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, errors.Wrap(err, "read plans file")
	}
	var doc planFile
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrapf(err, "parse plans file %s", f.Path)
	}
	out := make([]exchange.Plan, 0, len(doc.Plans))
	for i, row := range doc.Plans {
		p, err := row.toPlan()
		if err != nil {
			return nil, errors.Wrapf(err, "plan %d", i)
		}
		out = append(out, p)
	}
	return out, nil
}

type planFile struct {
	Plans []planRow `json:"exchange_plans"`
}

type planRow struct {
	ID      string `json:"id"`
	Account struct {
		UID      string `json:"bbs_uid"`
		Cookie   string `json:"cookie"`
		Stoken   string `json:"stoken"`
		StokenV2 bool   `json:"stoken_v2"`
		MID      string `json:"mid"`
	} `json:"account"`
	Good struct {
		ID       string `json:"goods_id"`
		Name     string `json:"goods_name"`
		Category string `json:"category"`
		Game     string `json:"game_biz"`
		Time     int64  `json:"time"` // unix seconds
	} `json:"good"`
	GameRole *struct {
		GameUID  string `json:"game_uid"`
		Region   string `json:"region"`
		Nickname string `json:"nickname"`
	} `json:"game_role"`
	Address *struct {
		ID     string `json:"id"`
		Detail string `json:"detail"`
	} `json:"address"`
}

func (r planRow) toPlan() (exchange.Plan, error) {
	id := uuid.New()
	if r.ID != "" {
		parsed, err := uuid.Parse(r.ID)
		if err != nil {
			return exchange.Plan{}, errors.Wrap(err, "parse id")
		}
		id = parsed
	}
	if r.Account.UID == "" {
		return exchange.Plan{}, errors.New("account bbs_uid required")
	}
	if r.Good.ID == "" {
		return exchange.Plan{}, errors.New("goods_id required")
	}
	if r.Good.Time == 0 {
		return exchange.Plan{}, errors.New("good time required")
	}
	cat := exchange.GoodCategory(r.Good.Category)
	switch cat {
	case exchange.CategoryVirtual, exchange.CategoryPhysical:
	default:
		return exchange.Plan{}, errors.Errorf("unknown category %q", r.Good.Category)
	}

	p := exchange.Plan{
		ID: id,
		Account: exchange.Account{
			UID:      r.Account.UID,
			Cookie:   r.Account.Cookie,
			Stoken:   r.Account.Stoken,
			StokenV2: r.Account.StokenV2,
			MID:      r.Account.MID,
		},
		Good: exchange.Good{
			ID:       r.Good.ID,
			Name:     r.Good.Name,
			Category: cat,
			Game:     r.Good.Game,
			Time:     time.Unix(r.Good.Time, 0),
		},
	}
	if r.GameRole != nil {
		p.GameRole = &exchange.GameRole{
			GameUID:  r.GameRole.GameUID,
			Region:   r.GameRole.Region,
			Nickname: r.GameRole.Nickname,
		}
	}
	if r.Address != nil {
		p.Address = &exchange.Address{ID: r.Address.ID, Detail: r.Address.Detail}
	}
	return p, nil
}
