package authserver

import (
	"errors"
	"io"
	"net"
	"sort"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/rr"
	"github.com/nsroot/nsroot/internal/wire"
	"github.com/nsroot/nsroot/internal/zone"
)

// AXFRMaxMessageSize is the per-message body cap for zone transfers —
// generous compared to a UDP-bound response, but still split across
// several TCP messages for a large zone (§8 property 10).
const AXFRMaxMessageSize = 16384

// ErrNotAZone is returned by AXFR when qname doesn't name a loaded zone apex.
var ErrNotAZone = errors.New("authserver: AXFR requested for a name that is not a zone apex")

type axfrItem struct {
	owner dnsname.Name
	ttl   uint32
	rr    rr.RRGen
}

// AXFR streams a full zone transfer for qname over conn as a sequence
// of length-prefixed DNS messages, each framed like the rest of the TCP
// path. It refuses (returning ErrNotAZone) if qname is not a zone apex
// with an SOA.
func (h *Handler) AXFR(conn net.Conn, id uint16, qname dnsname.Name) error {
	res := zone.Find(h.Root, qname, false)
	if !res.Matched || !res.Node.IsApex() {
		return ErrNotAZone
	}
	apex := res.Node
	soaSet := apex.Get(dnsenum.TypeSOA)
	if soaSet == nil || len(soaSet.Records) == 0 {
		return ErrNotAZone
	}

	items := []axfrItem{{owner: apex.Name(), ttl: soaSet.TTL, rr: soaSet.Records[0]}}
	items = append(items, nodeItems(apex, apex, true)...)
	for n := apex.Next(apex); n != nil; n = n.Next(apex) {
		items = append(items, nodeItems(n, apex, false)...)
	}
	items = append(items, axfrItem{owner: apex.Name(), ttl: soaSet.TTL, rr: soaSet.Records[0]})

	q := wire.Question{Name: qname, QType: dnsenum.TypeAXFR, Class: dnsenum.ClassIN}
	newMsg := func() (*wire.MessageWriter, error) {
		w, err := wire.NewMessageWriter(id, false, q, AXFRMaxMessageSize, nil)
		if err != nil {
			return nil, err
		}
		w.NoCompress = true
		w.Header.AuthoritativeAnswer = true
		return w, nil
	}
	flush := func(w *wire.MessageWriter) error {
		out, err := w.Serialize()
		w.Close()
		if err != nil {
			return err
		}
		framed := make([]byte, 2+len(out))
		framed[0] = byte(len(out) >> 8)
		framed[1] = byte(len(out))
		copy(framed[2:], out)
		_, err = conn.Write(framed)
		return err
	}

	w, err := newMsg()
	if err != nil {
		return err
	}
	for _, it := range items {
		if putErr := w.PutRR(dnsenum.SectionAnswer, it.owner, it.ttl, dnsenum.ClassIN, it.rr); putErr != nil {
			if err := flush(w); err != nil {
				return err
			}
			w, err = newMsg()
			if err != nil {
				return err
			}
			if putErr := w.PutRR(dnsenum.SectionAnswer, it.owner, it.ttl, dnsenum.ClassIN, it.rr); putErr != nil {
				return putErr
			}
		}
	}
	return flush(w)
}

// nodeItems lists n's own RRsets (and any RRSIG signatures riding along
// with them) in a deterministic type order. At the apex, SOA is skipped
// since the caller emits it separately at the start and end.
func nodeItems(n *zone.ZoneNode, apex *zone.ZoneNode, isApex bool) []axfrItem {
	sets := n.RRSets()
	types := make([]int, 0, len(sets))
	for t := range sets {
		types = append(types, int(t))
	}
	sort.Ints(types)

	var out []axfrItem
	name := n.Name()
	for _, ti := range types {
		t := dnsenum.DNSType(ti)
		if isApex && t == dnsenum.TypeSOA {
			continue
		}
		set := sets[t]
		for _, rec := range set.Records {
			out = append(out, axfrItem{owner: name, ttl: set.TTL, rr: rec})
		}
		for _, sig := range set.Sigs {
			out = append(out, axfrItem{owner: name, ttl: set.TTL, rr: sig})
		}
	}
	return out
}

// ReadAXFRRequest reads one length-prefixed DNS message off a freshly
// accepted TCP connection, per the same framing AXFR's own writes use.
func ReadAXFRRequest(conn net.Conn) ([]byte, error) {
	lenBuf := make([]byte, 2)
	if _, err := io.ReadFull(conn, lenBuf); err != nil {
		return nil, err
	}
	n := int(lenBuf[0])<<8 | int(lenBuf[1])
	data := make([]byte, n)
	if _, err := io.ReadFull(conn, data); err != nil {
		return nil, err
	}
	return data, nil
}
