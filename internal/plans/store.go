package plans

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/example/goods-scheduler/internal/db"
	"github.com/example/goods-scheduler/internal/exchange"
)

// Store persists plans and attempt outcomes in Postgres. It implements
// Source, so a database-backed deployment schedules straight from its rows.
type Store struct {
	db *db.DB
}

func NewStore(d *db.DB) *Store { return &Store{db: d} }

func (s *Store) Save(ctx context.Context, p exchange.Plan) error {
	var gameUID, region, addressID, addressDetail *string
	if p.GameRole != nil {
		gameUID, region = &p.GameRole.GameUID, &p.GameRole.Region
	}
	if p.Address != nil {
		addressID, addressDetail = &p.Address.ID, &p.Address.Detail
	}
	err := s.db.Exec(ctx, `
INSERT INTO exchange_plans(id,account_uid,cookie,stoken,stoken_v2,mid,goods_id,goods_name,category,game_biz,target_at,game_uid,region,address_id,address_detail)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Account.UID, p.Account.Cookie, p.Account.Stoken, p.Account.StokenV2, p.Account.MID,
		p.Good.ID, p.Good.Name, string(p.Good.Category), p.Good.Game, p.Good.Time,
		gameUID, region, addressID, addressDetail,
	)
	return errors.Wrap(err, "save plan")
}

// Plans implements Source, ordered by target time.
func (s *Store) Plans(ctx context.Context) ([]exchange.Plan, error) {
	rows, err := s.db.Query(ctx, `
SELECT id,account_uid,cookie,stoken,stoken_v2,mid,goods_id,goods_name,category,game_biz,target_at,game_uid,region,address_id,address_detail
FROM exchange_plans
ORDER BY target_at ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "list plans")
	}
	defer rows.Close()

	var out []exchange.Plan
	for rows.Next() {
		var (
			p                                  exchange.Plan
			id                                 uuid.UUID
			category                           string
			targetAt                           time.Time
			gameUID, region, addrID, addrDetail *string
		)
		if err := rows.Scan(
			&id, &p.Account.UID, &p.Account.Cookie, &p.Account.Stoken, &p.Account.StokenV2, &p.Account.MID,
			&p.Good.ID, &p.Good.Name, &category, &p.Good.Game, &targetAt,
			&gameUID, &region, &addrID, &addrDetail,
		); err != nil {
			return nil, errors.Wrap(err, "scan plan")
		}
		p.ID = id
		p.Good.Category = exchange.GoodCategory(category)
		p.Good.Time = targetAt
		if gameUID != nil {
			p.GameRole = &exchange.GameRole{GameUID: *gameUID}
			if region != nil {
				p.GameRole.Region = *region
			}
		}
		if addrID != nil {
			p.Address = &exchange.Address{ID: *addrID}
			if addrDetail != nil {
				p.Address.Detail = *addrDetail
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordOutcome writes one attempt row. Wired as a bus subscriber so the
// engine never knows persistence exists.
func (s *Store) RecordOutcome(ctx context.Context, res exchange.Result) error {
	err := s.db.Exec(ctx, `
INSERT INTO attempt_results(plan_id,status,completed_at) VALUES ($1,$2,$3)`,
		res.Plan.ID, string(res.Status), res.CompletedAt)
	return errors.Wrap(err, "record outcome")
}

// Outcome is one persisted attempt result row.
type Outcome struct {
	PlanID      uuid.UUID
	Status      exchange.Status
	CompletedAt time.Time
}

func (s *Store) Outcomes(ctx context.Context, planID uuid.UUID) ([]Outcome, error) {
	rows, err := s.db.Query(ctx, `
SELECT plan_id,status,completed_at FROM attempt_results WHERE plan_id=$1 ORDER BY completed_at ASC`, planID)
	if err != nil {
		return nil, errors.Wrap(err, "list outcomes")
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		var status string
		if err := rows.Scan(&o.PlanID, &status, &o.CompletedAt); err != nil {
			return nil, errors.Wrap(err, "scan outcome")
		}
		o.Status = exchange.Status(status)
		out = append(out, o)
	}
	return out, rows.Err()
}
