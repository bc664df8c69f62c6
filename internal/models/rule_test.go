package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRule_ThresholdParams(t *testing.T) {
	rule := Rule{
		ID:         "r1",
		Kind:       RuleKindThreshold,
		ParamsJSON: `{"event_type":"pos_void","severity":"suspicious","threshold_value":3,"time_window_minutes":10,"device_type":"register"}`,
	}

	params, err := rule.ThresholdParams()
	require.NoError(t, err)
	assert.Equal(t, "pos_void", params.EventType)
	assert.Equal(t, 3, params.ThresholdValue)
	assert.Equal(t, 10, params.TimeWindowMinutes)
	assert.Equal(t, "register", params.DeviceType)

	rule.ParamsJSON = `{"event_type":"pos_void","threshold_value":0,"time_window_minutes":10}`
	_, err = rule.ThresholdParams()
	assert.Error(t, err)

	rule.ParamsJSON = `{"event_type":"pos_void","threshold_value":3,"time_window_minutes":-1}`
	_, err = rule.ThresholdParams()
	assert.Error(t, err)

	rule.ParamsJSON = `{not json`
	_, err = rule.ThresholdParams()
	assert.Error(t, err)
}

func TestRule_AbsenceParams(t *testing.T) {
	rule := Rule{
		ID:         "r2",
		Kind:       RuleKindAbsence,
		ParamsJSON: `{"event_type":"drawer_open","pair_event_type":"pos_sale","pair_window_seconds":30}`,
	}

	params, err := rule.AbsenceParams()
	require.NoError(t, err)
	assert.Equal(t, "pos_sale", params.PairEventType)
	assert.Equal(t, 30, params.PairWindowSeconds)

	rule.ParamsJSON = `{"event_type":"drawer_open","pair_window_seconds":30}`
	_, err = rule.AbsenceParams()
	assert.Error(t, err)

	rule.ParamsJSON = `{"event_type":"drawer_open","pair_event_type":"pos_sale","pair_window_seconds":0}`
	_, err = rule.AbsenceParams()
	assert.Error(t, err)
}

func TestRule_ImmediateParamsFieldDefault(t *testing.T) {
	rule := Rule{
		ID:         "r3",
		Kind:       RuleKindImmediate,
		ParamsJSON: `{"event_type":"pos_void","threshold_value":100}`,
	}

	params, err := rule.ImmediateParams()
	require.NoError(t, err)
	assert.Equal(t, "amount", params.Field)
	assert.Equal(t, 100.0, params.ThresholdValue)

	rule.ParamsJSON = `{"event_type":"pos_refund","field":"total","threshold_value":50}`
	params, err = rule.ImmediateParams()
	require.NoError(t, err)
	assert.Equal(t, "total", params.Field)
}

func TestRule_TemporalParams(t *testing.T) {
	rule := Rule{
		ID:         "r4",
		Kind:       RuleKindTemporal,
		ParamsJSON: `{"event_type":"motion","start_hour":23,"end_hour":6}`,
	}

	params, err := rule.TemporalParams()
	require.NoError(t, err)
	assert.Equal(t, 23, params.StartHour)
	assert.Equal(t, 6, params.EndHour)

	rule.ParamsJSON = `{"event_type":"motion","start_hour":24,"end_hour":6}`
	_, err = rule.TemporalParams()
	assert.Error(t, err)
}

func TestRule_MatchesEventType(t *testing.T) {
	rule := Rule{ParamsJSON: `{"event_type":"pos_void"}`}
	assert.True(t, rule.MatchesEventType("pos_void"))
	assert.False(t, rule.MatchesEventType("pos_sale"))

	rule.ParamsJSON = `{"event_type":"*"}`
	assert.True(t, rule.MatchesEventType("anything"))

	rule.ParamsJSON = `{}`
	assert.True(t, rule.MatchesEventType("anything"))
}

func TestRule_PrepareRoundTrip(t *testing.T) {
	rule := Rule{Parameters: []byte(`{"event_type":"pos_void","threshold_value":3,"time_window_minutes":10}`)}
	rule.PrepareForDB()
	assert.JSONEq(t, string(rule.Parameters), rule.ParamsJSON)

	stored := Rule{ParamsJSON: rule.ParamsJSON}
	stored.PrepareForAPI()
	assert.JSONEq(t, rule.ParamsJSON, string(stored.Parameters))
}
