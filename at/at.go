package at

const (
	// Terminal Control
	CRLF   = "\r\n"
	Prompt = "> "

	// Final result codes
	OK       = "OK"
	Ready    = "ready"
	NoChange = "no change"
	SendOK   = "SEND OK"
	ERROR    = "ERROR"
	SendFail = "SEND FAIL"
)

// Basic commands understood by the ESP8266 AT firmware.
const (
	CmdAt       = "AT"
	CmdRestart  = "AT+RST"
	CmdEchoOn   = "ATE1"
	CmdEchoOff  = "ATE0"
	CmdVersion  = "AT+GMR"
	CmdUartCur  = "AT+UART_CUR?"
	CmdUartDef  = "AT+UART_DEF?"
	CmdSysRAM   = "AT+SYSRAM?"
	CmdListAPs  = "AT+CWLAP"
	CmdQuitAP   = "AT+CWQAP"
	CmdCloseIP  = "AT+CIPCLOSE"
	CmdWifiMode = "AT+CWMODE?"
)

// Result is the classification of a command exchange.
type Result int

const (
	Pending Result = iota // line is not a final result code
	Success
	Failure
	Timeout
)

func (r Result) String() string {
	switch r {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}
