package zone

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nsroot/nsroot/internal/dnsenum"
	"github.com/nsroot/nsroot/internal/dnsname"
	"github.com/nsroot/nsroot/internal/rr"
)

// LoadFile reads a master zone file (RFC 1035 §5) from r and ingests its
// records under root, creating (and marking as an apex) the node for
// origin. $ORIGIN and $TTL directives, parenthesized continuations and
// ';' comments are honored; a line that starts with whitespace inherits
// the most recent owner name, a relative owner is qualified with the
// current origin, and "@" means the current origin.
func LoadFile(root *ZoneNode, origin dnsname.Name, r io.Reader) (*ZoneNode, error) {
	apex := root.Add(origin)
	apex.SetZone(&ZoneInfo{Origin: origin})

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 1024*1024)
	scanner.Buffer(buf, 1024*1024)

	defaultTTL := uint32(DefaultTTL)
	var lastName dnsname.Name
	haveLastName := false
	var inParen bool
	var parenLines []string

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.IndexByte(line, ';'); idx >= 0 {
			line = line[:idx]
		}

		var firstLineLeadingWS bool
		if !inParen {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			firstLineLeadingWS = len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
			if strings.Contains(line, "(") {
				inParen = true
				parenLines = append(parenLines, strings.Replace(line, "(", " ", 1))
				if !strings.Contains(line, ")") {
					continue
				}
			}
		} else {
			parenLines = append(parenLines, line)
			if !strings.Contains(line, ")") {
				continue
			}
			inParen = false
		}

		var fullLine string
		if len(parenLines) > 0 {
			fullLine = strings.ReplaceAll(strings.Join(parenLines, " "), ")", " ")
			parenLines = nil
		} else {
			fullLine = line
		}

		trimmedFull := strings.TrimSpace(fullLine)
		if trimmedFull == "" {
			continue
		}

		if strings.HasPrefix(trimmedFull, "$") {
			parts := strings.Fields(trimmedFull)
			if len(parts) < 2 {
				continue
			}
			switch strings.ToUpper(parts[0]) {
			case "$ORIGIN":
				n, err := dnsname.Parse(parts[1])
				if err != nil {
					return nil, fmt.Errorf("zone: line %d: bad $ORIGIN: %w", lineNo, err)
				}
				origin = n
			case "$TTL":
				v, err := strconv.ParseUint(parts[1], 10, 32)
				if err != nil {
					return nil, fmt.Errorf("zone: line %d: bad $TTL: %w", lineNo, err)
				}
				defaultTTL = uint32(v)
			}
			continue
		}

		fields := strings.Fields(trimmedFull)
		if len(fields) == 0 {
			continue
		}

		var owner dnsname.Name
		if firstLineLeadingWS && haveLastName {
			owner = lastName
		} else {
			tok := fields[0]
			fields = fields[1:]
			switch {
			case tok == "@":
				owner = origin
			case strings.HasSuffix(tok, "."):
				n, err := dnsname.Parse(tok)
				if err != nil {
					return nil, fmt.Errorf("zone: line %d: bad owner %q: %w", lineNo, tok, err)
				}
				owner = n
			default:
				n, err := dnsname.Parse(tok)
				if err != nil {
					return nil, fmt.Errorf("zone: line %d: bad owner %q: %w", lineNo, tok, err)
				}
				owner = n.Concat(origin)
			}
			lastName = owner
			haveLastName = true
		}

		ttl := defaultTTL
		var qtype dnsenum.DNSType
		var haveType bool
		var rdata []string
		for i := 0; i < len(fields); i++ {
			f := fields[i]
			upper := strings.ToUpper(f)
			if v, err := strconv.ParseUint(f, 10, 32); err == nil {
				ttl = uint32(v)
				continue
			}
			if upper == "IN" || upper == "CH" || upper == "CS" || upper == "HS" {
				continue
			}
			if t, ok := dnsenum.TypeByName(upper); ok {
				qtype = t
				haveType = true
				rdata = fields[i+1:]
				break
			}
			return nil, fmt.Errorf("zone: line %d: unrecognized token %q", lineNo, f)
		}
		if !haveType {
			continue
		}

		record, err := parseRData(qtype, owner, rdata)
		if err != nil {
			return nil, fmt.Errorf("zone: line %d: %w", lineNo, err)
		}
		if _, err := root.IngestAt(owner, ttl, record); err != nil {
			return nil, fmt.Errorf("zone: line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return apex, nil
}

// parseRData builds an RRGen from presentation-form RDATA tokens. NS,
// CNAME, MX, SOA etc. with unqualified/"@"-relative name fields are
// handled by dnsname.Parse itself only when fully qualified; bare
// relative names in RDATA are treated as absolute (matching the
// teacher's zone loader, which does not expand RDATA-embedded names
// against $ORIGIN beyond the owner field).
func parseRData(t dnsenum.DNSType, owner dnsname.Name, tokens []string) (rr.RRGen, error) {
	_ = owner
	return rr.ParseText(t, tokens)
}
