package domain

// RPCKind says which side of a method streams.
type RPCKind int

const (
	Unary RPCKind = iota
	ServerStream
	ClientStream
	BidiStream
)

func (k RPCKind) String() string {
	switch k {
	case ServerStream:
		return "ServerStream"
	case ClientStream:
		return "ClientStream"
	case BidiStream:
		return "BidiStream"
	default:
		return "Unary"
	}
}

// Service is one gRPC service offered by a descriptor source
type Service struct {
	Name     string
	FullName string
	Methods  []Method
}

// Method is a gRPC method with its fully qualified message types
type Method struct {
	Name           string
	FullName       string
	InputType      string
	OutputType     string
	IsClientStream bool
	IsServerStream bool
}

// Kind classifies the method by its streaming flags.
func (m Method) Kind() RPCKind {
	switch {
	case m.IsClientStream && m.IsServerStream:
		return BidiStream
	case m.IsServerStream:
		return ServerStream
	case m.IsClientStream:
		return ClientStream
	}
	return Unary
}
