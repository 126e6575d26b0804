package portal

import (
	"fmt"
	"net"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// dnsTTL is deliberately short so clients re-resolve quickly once the
// portal closes and real DNS comes back.
const dnsTTL = 10

// resolver answers every A query with the portal address, so whatever
// hostname a freshly connected client tries leads to the settings page.
type resolver struct {
	srv *dns.Server
	pc  net.PacketConn
	ip  net.IP
	log *zap.Logger
}

func newResolver(addr string, ip net.IP, log *zap.Logger) *resolver {
	r := &resolver{ip: ip.To4(), log: log}

	mux := dns.NewServeMux()
	mux.HandleFunc(".", r.handleQuery)

	r.srv = &dns.Server{Addr: addr, Net: "udp", Handler: mux}
	return r
}

// start binds the UDP socket and serves on a new goroutine. A dns.Server
// cannot be restarted after Shutdown; build a fresh resolver per portal
// session.
func (r *resolver) start() error {
	pc, err := net.ListenPacket("udp", r.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", r.srv.Addr, err)
	}
	r.pc = pc
	r.srv.PacketConn = pc

	go func() {
		if err := r.srv.ActivateAndServe(); err != nil {
			r.log.Warn("portal dns server stopped", zap.Error(err))
		}
	}()
	return nil
}

func (r *resolver) stop() error {
	return r.srv.Shutdown()
}

// addr returns the bound address. Only valid after start.
func (r *resolver) addr() string {
	return r.pc.LocalAddr().String()
}

func (r *resolver) handleQuery(w dns.ResponseWriter, req *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(req)
	m.Authoritative = true

	// Non-A questions get an empty NOERROR answer rather than NXDOMAIN,
	// which keeps captive portal probes from caching a negative result.
	for _, q := range req.Question {
		if q.Qtype != dns.TypeA {
			continue
		}
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{
				Name:   q.Name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    dnsTTL,
			},
			A: r.ip,
		})
	}

	if err := w.WriteMsg(m); err != nil {
		r.log.Debug("dns reply failed", zap.Error(err))
	}
}
