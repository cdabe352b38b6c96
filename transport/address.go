package transport

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Scheme is the URI scheme that identifies nREPL endpoints.
const Scheme = "nrepl"

// Address identifies a remote nREPL endpoint, written as nrepl://<host>:<port>
type Address struct {
	Host string
	Port int
}

// ParseAddress parses an nrepl://host:port address.
func ParseAddress(address string) (Address, error) {
	u, err := url.Parse(address)
	if err != nil {
		return Address{}, fmt.Errorf("%w %q: %v", ErrInvalidAddress, address, err)
	}

	if u.Scheme != Scheme {
		return Address{}, fmt.Errorf("%w %q: scheme must be %s", ErrInvalidAddress, address, Scheme)
	}

	if u.Hostname() == "" || u.Port() == "" {
		return Address{}, fmt.Errorf("%w %q: expected %s://<host>:<port>", ErrInvalidAddress, address, Scheme)
	}

	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.User != nil {
		return Address{}, fmt.Errorf("%w %q: unexpected path, query or credentials", ErrInvalidAddress, address)
	}

	port, err := strconv.Atoi(u.Port())
	if err != nil || port < 1 || port > 65535 {
		return Address{}, fmt.Errorf("%w %q: bad port", ErrInvalidAddress, address)
	}

	return Address{Host: u.Hostname(), Port: port}, nil
}

// HostPort returns the address in the host:port form net.Dial expects.
func (a Address) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

func (a Address) String() string {
	return Scheme + "://" + a.HostPort()
}
