package wire

import (
	"net"
)

// SocketAddr is the RakNet on-wire address encoding (spec.md §4.1):
//
//	v4: 04 | ~ip[0..4] | port_be_u16
//	v6: 06 | family_le_u16=23 | port_be_u16 | flowinfo_be_u32 | ip[0..16] | scope_id_be_u32
type SocketAddr struct {
	IP   net.IP
	Port uint16
}

const afINET6 = 23

// UnspecifiedIPv4SocketAddr is the filler address RakNet uses for unused
// slots in the 10-entry system address array (spec.md §4.2).
func UnspecifiedIPv4SocketAddr() SocketAddr {
	return SocketAddr{IP: net.IPv4zero, Port: 0}
}

// LoopbackSocketAddr returns 127.0.0.1:port, used for slot 0 of that array.
func LoopbackSocketAddr(port uint16) SocketAddr {
	return SocketAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

// Encode writes the address in its v4 or v6 wire form depending on whether
// IP holds a 4-in-6 mapped address.
func (a SocketAddr) Encode(w *Writer) {
	if v4 := a.IP.To4(); v4 != nil {
		w.Byte(4)
		for i := 0; i < 4; i++ {
			w.Byte(^v4[i])
		}
		w.U16(a.Port)
		return
	}
	w.Byte(6)
	w.U16LE(afINET6)
	w.U16(a.Port)
	w.U32(0) // flowinfo
	v6 := a.IP.To16()
	if v6 == nil {
		v6 = make([]byte, 16)
	}
	w.Raw(v6)
	w.U32(0) // scope_id
}

// DecodeSocketAddr reads a SocketAddr, rejecting any version byte other
// than 4 or 6 with ErrInvalidAddrVersion.
func DecodeSocketAddr(r *Reader) (SocketAddr, error) {
	version, err := r.Byte()
	if err != nil {
		return SocketAddr{}, err
	}
	switch version {
	case 4:
		raw, err := r.Bytes(4)
		if err != nil {
			return SocketAddr{}, err
		}
		ip := make(net.IP, 4)
		for i := range raw {
			ip[i] = ^raw[i]
		}
		port, err := r.U16()
		if err != nil {
			return SocketAddr{}, err
		}
		return SocketAddr{IP: ip, Port: port}, nil
	case 6:
		if _, err := r.U16LE(); err != nil {
			return SocketAddr{}, err
		}
		port, err := r.U16()
		if err != nil {
			return SocketAddr{}, err
		}
		if _, err := r.U32(); err != nil {
			return SocketAddr{}, err
		}
		ip, err := r.Bytes(16)
		if err != nil {
			return SocketAddr{}, err
		}
		if _, err := r.U32(); err != nil {
			return SocketAddr{}, err
		}
		return SocketAddr{IP: net.IP(ip), Port: port}, nil
	default:
		return SocketAddr{}, ErrInvalidAddrVersion
	}
}

// FromUDPAddr converts a net.UDPAddr into a SocketAddr.
func FromUDPAddr(addr *net.UDPAddr) SocketAddr {
	if addr == nil {
		return UnspecifiedIPv4SocketAddr()
	}
	return SocketAddr{IP: addr.IP, Port: uint16(addr.Port)}
}

// UDPAddr converts back into a net.UDPAddr.
func (a SocketAddr) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: a.IP, Port: int(a.Port)}
}
