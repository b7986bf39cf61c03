package slimproto

import (
	"encoding/binary"
	"fmt"
)

// Inbound opcodes (LMS -> bridge), spec.md §4.1/§6.
const (
	OpStrm = "strm"
	OpCont = "cont"
	OpCodc = "codc"
	OpAude = "aude"
	OpAudg = "audg"
	OpSetd = "setd"
	OpServ = "serv"
	OpLedc = "ledc"
	OpVers = "vers"
)

// Outbound opcodes (bridge -> LMS), spec.md §4.1/§6.
const (
	OpHelo = "HELO"
	OpStat = "STAT"
	OpDsco = "DSCO"
	OpResp = "RESP"
	OpMeta = "META"
	OpSetdOut = "SETD"
)

// StrmCommand is the strm subcommand byte (spec.md §4.1).
type StrmCommand byte

const (
	StrmTimestamp  StrmCommand = 't'
	StrmFlush      StrmCommand = 'f'
	StrmStop       StrmCommand = 'q'
	StrmPause      StrmCommand = 'p'
	StrmSkipAhead  StrmCommand = 'a'
	StrmUnpause    StrmCommand = 'u'
	StrmStart      StrmCommand = 's'
)

// pcmSampleSizeTable/pcmSampleRateTable/pcmChannelsTable are the
// index->value lookup tables squeezelite uses to decode the single-digit
// ASCII codes carried in a strm packet, taken verbatim from
// original_source/application/squeezelite/slimproto.c.
var pcmSampleSizeTable = [4]int{8, 16, 24, 32}

var pcmSampleRateTable = [15]int{
	11025, 22050, 32000, 44100, 48000,
	8000, 12000, 16000, 24000, 96000, 88200,
	176400, 192000, 352800, 384000,
}

var pcmChannelsTable = [2]int{1, 2}

// PCMSampleSize decodes the single ASCII-digit pcm_sample_size field.
func PCMSampleSize(b byte) (int, bool) {
	i := int(b - '0')
	if i < 0 || i >= len(pcmSampleSizeTable) {
		return 0, false
	}

	return pcmSampleSizeTable[i], true
}

// PCMSampleRate decodes the single ASCII-digit pcm_sample_rate field.
func PCMSampleRate(b byte) (int, bool) {
	i := int(b - '0')
	if i < 0 || i >= len(pcmSampleRateTable) {
		return 0, false
	}

	return pcmSampleRateTable[i], true
}

// PCMChannels decodes the single ASCII-digit pcm_channels field.
func PCMChannels(b byte) (int, bool) {
	i := int(b - '1')
	if i < 0 || i >= len(pcmChannelsTable) {
		return 0, false
	}

	return pcmChannelsTable[i], true
}

// strmPacketFixedLen is the fixed portion of a strm packet body (after
// the 4-byte "strm" opcode), grounded on struct strm_packet's field
// order as used by process_strm in original_source/slimproto.c:
// command, autostart, format, pcm_sample_size, pcm_sample_rate,
// pcm_channels, pcm_endianness, threshold (u8, KB units), spdif_enable,
// transition_period, transition_type, flags, output_threshold,
// reserved, replay_gain (u32), server_port (u16), server_ip (u32).
const strmPacketFixedLen = 24

// Strm is a parsed `strm` message body.
type Strm struct {
	Command           StrmCommand
	Autostart         byte
	Format            byte
	PCMSampleSize     byte
	PCMSampleRate     byte
	PCMChannels       byte
	PCMEndianness     byte
	ThresholdKB       byte
	SpdifEnable       byte
	TransitionPeriod  byte
	TransitionType    byte
	Flags             byte
	OutputThreshold   byte
	ReplayGain        uint32
	ServerPort        uint16
	ServerIP          uint32 // network byte order, 0 means "use current LMS connection"
	Header            []byte // literal HTTP request header block, present only for command 's'
}

// ParseStrm parses a strm message body per spec.md §4.1.
func ParseStrm(body []byte) (Strm, error) {
	if len(body) < strmPacketFixedLen {
		return Strm{}, fmt.Errorf("slimproto: strm body too short: %d bytes", len(body))
	}

	s := Strm{
		Command:          StrmCommand(body[0]),
		Autostart:        body[1],
		Format:           body[2],
		PCMSampleSize:    body[3],
		PCMSampleRate:    body[4],
		PCMChannels:      body[5],
		PCMEndianness:    body[6],
		ThresholdKB:      body[7],
		SpdifEnable:      body[8],
		TransitionPeriod: body[9],
		TransitionType:   body[10],
		Flags:            body[11],
		OutputThreshold:  body[12],
		// body[13] reserved
		ReplayGain: binary.BigEndian.Uint32(body[14:18]),
		ServerPort: binary.BigEndian.Uint16(body[18:20]),
		ServerIP:   binary.BigEndian.Uint32(body[20:24]),
	}

	if len(body) > strmPacketFixedLen {
		s.Header = body[strmPacketFixedLen:]
	}

	return s, nil
}

// Cont is a parsed `cont` message: the metadata-interval follow-up for
// autostart 2/3 wait-mode streams (spec.md §4.1).
type Cont struct {
	MetaInt uint32
	Loop    byte
}

func ParseCont(body []byte) (Cont, error) {
	if len(body) < 5 {
		return Cont{}, fmt.Errorf("slimproto: cont body too short: %d bytes", len(body))
	}

	return Cont{
		MetaInt: binary.BigEndian.Uint32(body[0:4]),
		Loop:    body[4],
	}, nil
}

// Codc is a late codec declaration, same shape as the format+pcm_* fields
// of a strm packet.
type Codc struct {
	Format        byte
	PCMSampleSize byte
	PCMSampleRate byte
	PCMChannels   byte
	PCMEndianness byte
}

func ParseCodc(body []byte) (Codc, error) {
	if len(body) < 5 {
		return Codc{}, fmt.Errorf("slimproto: codc body too short: %d bytes", len(body))
	}

	return Codc{
		Format:        body[0],
		PCMSampleSize: body[1],
		PCMSampleRate: body[2],
		PCMChannels:   body[3],
		PCMEndianness: body[4],
	}, nil
}

// Aude is the enable/disable-audio toggle.
type Aude struct {
	EnableSpdif byte
	EnableDAC   byte
}

func ParseAude(body []byte) (Aude, error) {
	if len(body) < 2 {
		return Aude{}, fmt.Errorf("slimproto: aude body too short: %d bytes", len(body))
	}

	return Aude{EnableSpdif: body[0], EnableDAC: body[1]}, nil
}

// Audg is the volume message; OldGainL/R are 16.16 fixed point gains,
// Adjust non-zero means "apply this gain now".
type Audg struct {
	OldGainL uint32
	OldGainR uint32
	Adjust   byte
}

func ParseAudg(body []byte) (Audg, error) {
	if len(body) < 9 {
		return Audg{}, fmt.Errorf("slimproto: audg body too short: %d bytes", len(body))
	}

	return Audg{
		OldGainL: binary.BigEndian.Uint32(body[0:4]),
		OldGainR: binary.BigEndian.Uint32(body[4:8]),
		Adjust:   body[8],
	}, nil
}

// Setd is the player-name query/set message.
type Setd struct {
	ID   byte
	Data string // empty for a query (len(body) == 1)
}

func ParseSetd(body []byte) (Setd, error) {
	if len(body) < 1 {
		return Setd{}, fmt.Errorf("slimproto: setd body empty")
	}

	s := Setd{ID: body[0]}
	if len(body) > 1 {
		s.Data = trimNUL(body[1:])
	}

	return s, nil
}

// Serv is the server-migration message; SyncgroupID is "" if absent.
type Serv struct {
	ServerIP    uint32
	SyncgroupID string
}

func ParseServ(body []byte) (Serv, error) {
	if len(body) < 4 {
		return Serv{}, fmt.Errorf("slimproto: serv body too short: %d bytes", len(body))
	}

	s := Serv{ServerIP: binary.BigEndian.Uint32(body[0:4])}
	if len(body) >= 14 {
		s.SyncgroupID = string(body[4:14])
	}

	return s, nil
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}

	return string(b)
}

// ---- outbound builders ----

// BuildHELO constructs the HELO message body per spec.md §4.1: deviceid
// 12, revision 0, wlan_channellist encoding reconnect/fresh, mac, bytes
// received so far, and a trailing capability string.
func BuildHELO(reconnect bool, mac [6]byte, bytesReceived uint64, capability string) []byte {
	body := make([]byte, 0, 36+len(capability))

	body = binary.BigEndian.AppendUint32(body, 12)      // deviceid
	body = append(body, 0)                              // revision
	if reconnect {
		body = binary.BigEndian.AppendUint16(body, 0x4000)
	} else {
		body = binary.BigEndian.AppendUint16(body, 0x0000)
	}

	body = append(body, mac[:]...)
	body = append(body, make([]byte, 10)...) // wlan_accesspoint (unused) + reserved, zeroed
	body = binary.BigEndian.AppendUint32(body, uint32(bytesReceived>>32))
	body = binary.BigEndian.AppendUint32(body, uint32(bytesReceived&0xffffffff))
	body = append(body, []byte(capability)...)

	return body
}

// StatusSnapshot carries the fields sendSTAT packs into a STAT message,
// taken directly from original_source's status_t/sendSTAT.
type StatusSnapshot struct {
	StreamBufferFullness uint32
	StreamBufferSize     uint32
	BytesReceived        uint64
	OutputBufferSize     uint32
	OutputBufferFullness uint32
	ElapsedMs            uint32
	Voltage              uint16
	JiffiesNow           uint32
	ServerTimestamp      uint32
}

// BuildSTAT constructs a STAT message body for the given 4-char event
// code (STMt, STMc, STMf, STMl, STMs, STMd, STMu, STMo, STMn, STMp,
// STMr).
func BuildSTAT(event string, s StatusSnapshot) ([]byte, error) {
	if len(event) != 4 {
		return nil, fmt.Errorf("slimproto: STAT event %q must be 4 chars", event)
	}

	body := make([]byte, 0, 53)
	body = append(body, []byte(event)...)
	body = append(body, 0, 0, 0) // num_crlf, mas_initialized, mas_mode
	body = binary.BigEndian.AppendUint32(body, s.StreamBufferFullness)
	body = binary.BigEndian.AppendUint32(body, s.StreamBufferSize)
	body = binary.BigEndian.AppendUint32(body, uint32(s.BytesReceived>>32))
	body = binary.BigEndian.AppendUint32(body, uint32(s.BytesReceived&0xffffffff))
	body = binary.BigEndian.AppendUint16(body, 0xffff) // signal_strength
	body = binary.BigEndian.AppendUint32(body, s.JiffiesNow)
	body = binary.BigEndian.AppendUint32(body, s.OutputBufferSize)
	body = binary.BigEndian.AppendUint32(body, s.OutputBufferFullness)
	body = binary.BigEndian.AppendUint32(body, s.ElapsedMs/1000)
	body = binary.BigEndian.AppendUint16(body, s.Voltage)
	body = binary.BigEndian.AppendUint32(body, s.ElapsedMs)
	body = binary.BigEndian.AppendUint32(body, s.ServerTimestamp)

	return body, nil
}

// DisconnectReason mirrors StreamState's disconnect reason (spec.md
// §3/§4.2).
type DisconnectReason byte

const (
	DSCOOK DisconnectReason = iota
	DSCOLocalDisconnect
	DSCORemoteDisconnect
	DSCOUnreachable
	DSCOTimeout
)

// BuildDSCO constructs a DSCO message body.
func BuildDSCO(reason DisconnectReason) []byte {
	return []byte{byte(reason)}
}

// BuildRESP constructs a RESP message body: the literal captured header
// block forwarded to LMS once response headers arrive (spec.md §4.2).
func BuildRESP(header []byte) []byte {
	return header
}

// BuildMETA constructs a META message body: raw ICY metadata bytes
// forwarded to LMS (spec.md §4.2).
func BuildMETA(icy []byte) []byte {
	return icy
}

// BuildSETDName constructs a SETD message body confirming/echoing a
// player name (id 0), NUL-terminated per original_source's sendSETDName.
func BuildSETDName(name string) []byte {
	body := make([]byte, 0, len(name)+2)
	body = append(body, 0) // id 0: player name
	body = append(body, []byte(name)...)
	body = append(body, 0)

	return body
}
