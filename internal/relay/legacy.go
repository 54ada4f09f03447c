package relay

import (
	"encoding/json"
	"time"
)

// Legacy is the older dashboard schema: rule state is "on"/"off" and weekdays
// is a list of day names.
type Legacy struct{}

func (Legacy) Version() Schema { return SchemaLegacy }

type legacyRule struct {
	ID       int      `json:"id"`
	RelayID  int      `json:"relayId"`
	State    string   `json:"state"`
	Time     string   `json:"time"`
	Weekdays []string `json:"weekdays"`
}

func (Legacy) DecodeRelay(raw []byte) (Relay, error) {
	return decodeRelay(raw)
}

func (Legacy) EncodeRelayState(id int, state State) ([]byte, error) {
	return json.Marshal(relayStateBody{RelayID: id, State: string(state)})
}

func (Legacy) DecodeRule(relayID int, raw []byte) (AlarmRule, error) {
	f, err := objectFields("alarm", raw)
	if err != nil {
		return AlarmRule{}, err
	}

	r := AlarmRule{RelayID: relayID}
	if err := f.required("id", &r.ID); err != nil {
		return AlarmRule{}, err
	}

	var s string
	if err := f.required("state", &s); err != nil {
		return AlarmRule{}, err
	}
	if r.Target, err = ParseState(s); err != nil {
		return AlarmRule{}, malformed("alarm", "state", err.Error())
	}

	if r.Trigger, err = f.trigger(); err != nil {
		return AlarmRule{}, err
	}

	var names []string
	if _, err := f.optional("weekdays", &names); err != nil {
		return AlarmRule{}, err
	}
	for _, n := range names {
		d, err := ParseWeekday(n)
		if err != nil {
			return AlarmRule{}, malformed("alarm", "weekdays", err.Error())
		}
		r.Weekdays[d] = true
	}
	return r, nil
}

func (Legacy) EncodeRule(rule AlarmRule) ([]byte, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(legacyRule{
		ID:       rule.ID,
		RelayID:  rule.RelayID,
		State:    string(rule.Target),
		Time:     rule.Trigger.String(),
		Weekdays: legacyDays(rule.Weekdays),
	})
}

// legacyDays lists active days Monday first, the order the old dashboard rendered.
func legacyDays(w Weekdays) []string {
	out := make([]string, 0, 7)
	for i := 1; i <= 7; i++ {
		d := time.Weekday(i % 7)
		if w.On(d) {
			out = append(out, dayNames[d])
		}
	}
	return out
}
