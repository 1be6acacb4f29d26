package mihoyo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/goods-scheduler/internal/exchange"
)

// Client talks to the miHoYo community mall's goods-exchange API. The request
// flow and headers follow the community tooling for the myBBS mall: one POST
// per redemption, retcode 0 on success.
type Client struct {
	hc            *http.Client
	exchangeURL   string
	gameRecordURL string
}

// supportedGames are the game_biz prefixes the mall redeems virtual goods
// for. Goods for anything else come back as unsupported.
var supportedGames = map[string]struct{}{
	"bh2": {}, "bh3": {}, "hk4e": {}, "hkrpg": {}, "nap": {}, "nxx": {}, "bbs": {},
}

func New(exchangeURL, gameRecordURL string) *Client {
	return &Client{
		hc:            &http.Client{Timeout: 10 * time.Second},
		exchangeURL:   exchangeURL,
		gameRecordURL: gameRecordURL,
	}
}

func (c *Client) Name() string { return "mihoyo" }

// Exchange implements exchange.Provider. Credential and address
// preconditions surface as domain statuses before any request is issued;
// only transport failures return an error.
func (c *Client) Exchange(ctx context.Context, plan exchange.Plan) (exchange.Status, error) {
	if plan.Account.UID == "" {
		return exchange.StatusAccountNotFound, nil
	}

	req := exchangeRequest{
		AppID:       1,
		GoodsID:     plan.Good.ID,
		ExchangeNum: 1,
	}

	switch plan.Good.Category {
	case exchange.CategoryVirtual:
		if plan.Good.Game != "" {
			if _, ok := supportedGames[gameOf(plan.Good.Game)]; !ok {
				return exchange.StatusUnsupportedGame, nil
			}
		}
		if plan.Account.Stoken == "" {
			return exchange.StatusMissingStoken, nil
		}
		if plan.Account.StokenV2 && plan.Account.MID == "" {
			return exchange.StatusMissingMID, nil
		}
		if plan.GameRole == nil || plan.GameRole.GameUID == "" {
			return exchange.StatusMissingGameUID, nil
		}
		if ok, err := c.checkGameRecord(ctx, plan); err != nil {
			return exchange.StatusNetworkError, err
		} else if !ok {
			return exchange.StatusFailedGameRecord, nil
		}
		req.UID = plan.GameRole.GameUID
		req.Region = plan.GameRole.Region
		req.GameBiz = plan.Good.Game
	case exchange.CategoryPhysical:
		if plan.Address == nil || plan.Address.ID == "" {
			return exchange.StatusMissingAddress, nil
		}
		req.AddressID = plan.Address.ID
	default:
		return exchange.StatusUnsupportedGame, nil
	}

	body, err := json.Marshal(req)
	if err != nil {
		return exchange.StatusNetworkError, err
	}
	status, rbody, err := c.do(ctx, http.MethodPost, c.exchangeURL, plan.Account, body)
	if err != nil {
		return exchange.StatusNetworkError, err
	}
	var res apiResponse
	if err := json.Unmarshal(rbody, &res); err != nil {
		return exchange.StatusNetworkError, fmt.Errorf("decode exchange response (status=%d): %w", status, err)
	}
	if status >= 400 || res.Retcode != 0 {
		return exchange.StatusNetworkError, fmt.Errorf("exchange rejected: retcode=%d message=%q", res.Retcode, res.Message)
	}
	return exchange.StatusSuccess, nil
}

// checkGameRecord verifies the plan's game role actually belongs to the
// account. A reachable API that cannot produce the record is a domain
// failure, not a transport one.
func (c *Client) checkGameRecord(ctx context.Context, plan exchange.Plan) (bool, error) {
	u := fmt.Sprintf("%s?game_biz=%s", c.gameRecordURL, plan.Good.Game)
	status, body, err := c.do(ctx, http.MethodGet, u, plan.Account, nil)
	if err != nil {
		return false, err
	}
	if status >= 400 {
		return false, nil
	}
	var res gameRecordResponse
	if err := json.Unmarshal(body, &res); err != nil || res.Retcode != 0 {
		return false, nil
	}
	for _, role := range res.Data.List {
		if role.GameUID == plan.GameRole.GameUID {
			return true, nil
		}
	}
	return false, nil
}

type exchangeRequest struct {
	AppID       int    `json:"app_id"`
	GoodsID     string `json:"goods_id"`
	ExchangeNum int    `json:"exchange_num"`
	AddressID   string `json:"address_id,omitempty"`
	UID         string `json:"uid,omitempty"`
	Region      string `json:"region,omitempty"`
	GameBiz     string `json:"game_biz,omitempty"`
}

type apiResponse struct {
	Retcode int             `json:"retcode"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type gameRecordResponse struct {
	Retcode int    `json:"retcode"`
	Message string `json:"message"`
	Data    struct {
		List []struct {
			GameUID  string `json:"game_uid"`
			Region   string `json:"region"`
			Nickname string `json:"nickname"`
		} `json:"list"`
	} `json:"data"`
}

func (c *Client) do(ctx context.Context, method, rawURL string, acct exchange.Account, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 16_2 like Mac OS X) miHoYoBBS/2.40.1")
	req.Header.Set("Referer", "https://webstatic.mihoyo.com")
	req.Header.Set("x-rpc-client_type", "5")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Cookie", cookieFor(acct))

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}

func cookieFor(acct exchange.Account) string {
	parts := []string{acct.Cookie}
	if acct.Stoken != "" {
		parts = append(parts, "stoken="+acct.Stoken)
	}
	if acct.MID != "" {
		parts = append(parts, "mid="+acct.MID)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "; ")
}

// gameOf strips the region suffix from a game_biz value, e.g. "hk4e_cn" →
// "hk4e".
func gameOf(biz string) string {
	if i := strings.IndexByte(biz, '_'); i > 0 {
		return biz[:i]
	}
	return biz
}
