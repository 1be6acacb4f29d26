package exchange

// Status is the terminal outcome of one exchange attempt. Exactly one value
// names the cause when the attempt did not succeed cleanly.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusNetworkError     Status = "network_error"
	StatusMissingStoken    Status = "missing_stoken"
	StatusMissingMID       Status = "missing_mid"
	StatusMissingAddress   Status = "missing_address"
	StatusMissingGameUID   Status = "missing_game_uid"
	StatusUnsupportedGame  Status = "unsupported_game"
	StatusFailedGameRecord Status = "failed_getting_game_record"
	StatusInitRequired     Status = "init_required"
	StatusAccountNotFound  Status = "account_not_found"
)

func (s Status) Succeeded() bool { return s == StatusSuccess }

// Describe returns the human-readable cause line for logs and the CLI.
func (s Status) Describe() string {
	switch s {
	case StatusSuccess:
		return "exchange succeeded"
	case StatusNetworkError:
		return "network error"
	case StatusMissingStoken:
		return "good is an in-game item but the cookies are missing an stoken"
	case StatusMissingMID:
		return "stoken is the v2 kind but the cookies are missing a mid"
	case StatusMissingAddress:
		return "good is a physical item but no shipping address is configured"
	case StatusMissingGameUID:
		return "good is an in-game item but no game account UID is configured"
	case StatusUnsupportedGame:
		return "goods for this game or region are not supported"
	case StatusFailedGameRecord:
		return "fetching the user's game record failed"
	case StatusInitRequired:
		return "exchange task was not initialized"
	case StatusAccountNotFound:
		return "account not found"
	}
	return "unknown error"
}
