package semtech

import (
	"testing"

	"github.com/agsys/packetfwd/internal/radio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTXPKImmediateLoRa(t *testing.T) {
	body := []byte(`{"imme":true,"freq":868.500000,"rfch":0,"powe":14,"modu":"LORA","datr":"SF7BW125","codr":"4/5","data":"QUJD","size":3}`)

	pkt, err := ParseTXPK(body)
	require.NoError(t, err)
	assert.Equal(t, radio.TXModeImmediate, pkt.Mode)
	assert.Equal(t, uint32(868500000), pkt.FreqHz)
	assert.Equal(t, radio.Bandwidth125kHz, pkt.Bandwidth)
	assert.Equal(t, uint32(7), pkt.DataRate)
	assert.Equal(t, radio.CodeRate4_5, pkt.CodeRate)
	assert.Equal(t, []byte("ABC"), pkt.Payload)
	assert.Equal(t, radio.StdLoraPreamble, pkt.PreambleLen)
}

func TestParseTXPKTimestampedRejectsBadSize(t *testing.T) {
	body := []byte(`{"tmst":1000,"freq":868.1,"rfch":0,"powe":14,"modu":"LORA","datr":"SF7BW125","codr":"4/5","data":"QUJD","size":99}`)
	_, err := ParseTXPK(body)
	assert.Error(t, err)
}

func TestParseTXPKCodrAlias(t *testing.T) {
	body := []byte(`{"imme":true,"freq":868.1,"rfch":0,"powe":14,"modu":"LORA","datr":"SF8BW500","codr":"2/3","data":"","size":0}`)
	pkt, err := ParseTXPK(body)
	require.NoError(t, err)
	assert.Equal(t, radio.CodeRate4_6, pkt.CodeRate)
	assert.Equal(t, radio.Bandwidth500kHz, pkt.Bandwidth)
}

func TestTokenForRejectionMapping(t *testing.T) {
	token, ok := TokenForRejection(0)
	assert.True(t, ok)
	assert.Equal(t, TxAckNone, token)
}
