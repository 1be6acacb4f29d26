package plans

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/goods-scheduler/internal/exchange"
)

func writePlans(t *testing.T, body string) FileSource {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return FileSource{Path: path}
}

func TestFileSourceParsesPlans(t *testing.T) {
	src := writePlans(t, `{
  "exchange_plans": [
    {
      "account": {"bbs_uid": "123456", "cookie": "account_id=123456", "stoken": "abc"},
      "good": {"goods_id": "2023042001", "goods_name": "in-game fan", "category": "virtual", "game_biz": "hk4e_cn", "time": 1682000000},
      "game_role": {"game_uid": "900000001", "region": "cn_gf01"}
    },
    {
      "id": "0b7cee3f-7bb1-4e65-a5a4-3466e4e52b71",
      "account": {"bbs_uid": "654321"},
      "good": {"goods_id": "2023042002", "goods_name": "mousepad", "category": "physical", "time": 1682000060},
      "address": {"id": "addr-1", "detail": "somewhere"}
    }
  ]
}`)

	ps, err := src.Plans(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 2)

	first := ps[0]
	assert.Equal(t, "123456", first.Account.UID)
	assert.Equal(t, exchange.CategoryVirtual, first.Good.Category)
	assert.Equal(t, time.Unix(1682000000, 0), first.TargetTime())
	require.NotNil(t, first.GameRole)
	assert.Equal(t, "900000001", first.GameRole.GameUID)
	assert.Nil(t, first.Address)
	assert.NotEqual(t, first.ID, ps[1].ID)

	second := ps[1]
	assert.Equal(t, "0b7cee3f-7bb1-4e65-a5a4-3466e4e52b71", second.ID.String())
	require.NotNil(t, second.Address)
	assert.Equal(t, "addr-1", second.Address.ID)
}

func TestFileSourceMissingFile(t *testing.T) {
	src := FileSource{Path: filepath.Join(t.TempDir(), "absent.json")}
	_, err := src.Plans(context.Background())
	assert.Error(t, err)
}

func TestFileSourceRejectsBadRows(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "not json",
			body: `{"exchange_plans": [`,
		},
		{
			name: "missing account uid",
			body: `{"exchange_plans": [{"account": {}, "good": {"goods_id": "g", "category": "virtual", "time": 1}}]}`,
		},
		{
			name: "missing goods id",
			body: `{"exchange_plans": [{"account": {"bbs_uid": "1"}, "good": {"category": "virtual", "time": 1}}]}`,
		},
		{
			name: "missing target time",
			body: `{"exchange_plans": [{"account": {"bbs_uid": "1"}, "good": {"goods_id": "g", "category": "virtual"}}]}`,
		},
		{
			name: "unknown category",
			body: `{"exchange_plans": [{"account": {"bbs_uid": "1"}, "good": {"goods_id": "g", "category": "digital", "time": 1}}]}`,
		},
		{
			name: "bad id",
			body: `{"exchange_plans": [{"id": "nope", "account": {"bbs_uid": "1"}, "good": {"goods_id": "g", "category": "virtual", "time": 1}}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := writePlans(t, tt.body)
			_, err := src.Plans(context.Background())
			assert.Error(t, err)
		})
	}
}
