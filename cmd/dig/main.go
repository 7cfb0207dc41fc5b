// Command dig is a minimal dig-like DNS client: it sends one query to
// one server and prints the question, header, and every RR section it
// gets back.
package main

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/rr"
	"github.com/nsroot/nsroot/internal/wire"
)

const queryTimeout = 5 * time.Second

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: dig name type addr[:port]")
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Args[2], os.Args[3]); err != nil {
		fmt.Fprintln(os.Stderr, "dig:", err)
		os.Exit(1)
	}
}

func run(name, typeStr, addr string) error {
	qname, err := dnsname.Parse(name)
	if err != nil {
		return fmt.Errorf("name: %w", err)
	}
	qtype, ok := dnsenum.TypeByName(strings.ToUpper(typeStr))
	if !ok {
		return fmt.Errorf("unknown record type %q", typeStr)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "53")
	}

	q := wire.Question{Name: qname, QType: qtype, Class: dnsenum.ClassIN}
	id := uint16(os.Getpid())

	resp, err := query(addr, "udp", id, q)
	if err != nil {
		return err
	}
	if resp.Header.Truncated {
		resp.Close()
		resp, err = query(addr, "tcp", id, q)
		if err != nil {
			return err
		}
	}
	defer resp.Close()

	printResponse(resp)
	return nil
}

func query(addr, network string, id uint16, q wire.Question) (*wire.MessageReader, error) {
	w, err := wire.NewMessageWriter(id, true, q, wire.MaxPacketSize, &wire.EDNS{UDPSize: 4096})
	if err != nil {
		return nil, err
	}
	w.Header.Response = false
	data, err := w.Serialize()
	w.Close()
	if err != nil {
		return nil, err
	}

	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(queryTimeout)); err != nil {
		return nil, err
	}

	if network == "tcp" {
		framed := make([]byte, 2+len(data))
		framed[0] = byte(len(data) >> 8)
		framed[1] = byte(len(data))
		copy(framed[2:], data)
		if _, err := conn.Write(framed); err != nil {
			return nil, err
		}
		lenBuf := make([]byte, 2)
		if _, err := readFull(conn, lenBuf); err != nil {
			return nil, err
		}
		n := int(lenBuf[0])<<8 | int(lenBuf[1])
		body := make([]byte, n)
		if _, err := readFull(conn, body); err != nil {
			return nil, err
		}
		return wire.NewMessageReader(body)
	}

	if _, err := conn.Write(data); err != nil {
		return nil, err
	}
	buf := make([]byte, wire.MaxPacketSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return wire.NewMessageReader(buf[:n])
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func printResponse(r *wire.MessageReader) {
	fmt.Printf(";; ->>HEADER<<- opcode: %d, status: %s, id: %d\n", r.Header.Opcode, r.Header.RCode, r.Header.ID)
	fmt.Printf(";; flags: qr=%v aa=%v tc=%v rd=%v ra=%v; QUERY: %d, ANSWER: %d, AUTHORITY: %d, ADDITIONAL: %d\n\n",
		r.Header.Response, r.Header.AuthoritativeAnswer, r.Header.Truncated, r.Header.RecursionDesired,
		r.Header.RecursionAvailable, r.Header.QDCount, r.Header.ANCount, r.Header.NSCount, r.Header.ARCount)

	if r.HasQ {
		fmt.Printf(";; QUESTION SECTION:\n;%s\t%s\t%s\n\n", r.Question.Name, r.Question.Class, r.Question.QType)
	}

	cur := dnsenum.DNSSection(-1)
	for {
		rec, sec, ok, err := r.GetRR()
		if err != nil {
			fmt.Fprintln(os.Stderr, "dig: malformed RR:", err)
			break
		}
		if !ok {
			break
		}
		if sec != cur {
			cur = sec
			fmt.Printf(";; %s SECTION:\n", strings.ToUpper(cur.String()))
		}
		tokens := rr.FormatText(rec.RR)
		fmt.Printf("%s\t%d\t%s\t%s\t%s\n", rec.Owner, rec.TTL, rec.Class, rec.RR.Type(), strings.Join(tokens, " "))
	}
}
