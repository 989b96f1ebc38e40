package resp

// Protocol delimiters
const (
	// CRLF terminates every header line and every bulk payload.
	CRLF = "\r\n"
)

// Type markers, the first byte of every reply line.
const (
	MarkerSimple  byte = '+'
	MarkerError   byte = '-'
	MarkerInteger byte = ':'
	MarkerBulk    byte = '$'
	MarkerArray   byte = '*'
)

// nullLength is the declared length of a null bulk string or a null array.
const nullLength = -1

// Failure texts delivered as the reply value of locally resolved commands.
const (
	TextTimeout        = "timeout"
	TextConnectionLost = "connection lost"
)

var crlfBytes = []byte(CRLF)
