package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"0.0.0.0:5000", false},
		{":5000", false},
		{"localhost:8080", false},
		{"127.0.0.1", true},
		{"host.example:80", true},
		{"0.0.0.0:70000", true},
		{"0.0.0.0:http", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOptionalSinksDisabledByDefault(t *testing.T) {
	assert.False(t, NewMqttOptions().Enabled())
	assert.False(t, NewKafkaOptions().Enabled())
	assert.False(t, NewInfluxOptions().Enabled())
	assert.False(t, NewS3Options().Enabled())

	assert.Empty(t, NewMqttOptions().Validate())
	assert.Empty(t, NewKafkaOptions().Validate())
	assert.Empty(t, NewInfluxOptions().Validate())
	assert.Empty(t, NewS3Options().Validate())
}

func TestStoreOptionsValidate(t *testing.T) {
	o := NewStoreOptions()
	assert.Empty(t, o.Validate())

	o.Driver = StoreDriverSQLite
	o.Path = ""
	assert.Len(t, o.Validate(), 1)

	o.Driver = "postgres"
	assert.Len(t, o.Validate(), 1)
}

func TestHubOptionsPingPeriodBelowPongWait(t *testing.T) {
	o := NewHubOptions()
	assert.Less(t, o.PingPeriod(), o.PongWait)
	assert.Empty(t, o.Validate())

	o.Path = "ws"
	assert.NotEmpty(t, o.Validate())
}
