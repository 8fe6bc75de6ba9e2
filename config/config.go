// Package config implements the stored configuration document: the canonical
// text form a configuration takes on the ledger, its parser and its rules.
//
// A document has exactly one byte representation. Parse rejects anything that
// Render would not have produced, so the CID of the bytes identifies the
// configuration.
package config

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/ledger/cidutil"
	"xdao.co/ledger/keys"
)

const (
	Preamble  = "-----BEGIN XDAO CONFIGURATION-----"
	Postamble = "-----END XDAO CONFIGURATION-----"

	SpecName    = "xdao-config-1"
	SpecVersion = "1"

	// MaxValidators bounds the Validator-NNN numbering.
	MaxValidators = 1000
)

// Consensus holds the consensus parameters. MajorityCount 0 means unset.
type Consensus struct {
	RoundTimeout            uint64
	StatusTimeout           uint64
	PeersTimeout            uint64
	TxsBlockLimit           uint64
	MaxMessageLen           uint64
	MinProposeTimeout       uint64
	MaxProposeTimeout       uint64
	ProposeTimeoutThreshold uint64
	MajorityCount           uint64
}

// Validator is one entry of the validator set.
type Validator struct {
	ConsensusKey keys.TaggedKey
	ServiceKey   keys.TaggedKey
}

// Stored is a configuration as kept in the ledger.
type Stored struct {
	// PreviousConfig is the configuration this one supersedes; cid.Undef for the first.
	PreviousConfig cid.Cid
	// ActualFrom is the height from which the configuration is active.
	ActualFrom uint64
	Consensus  Consensus
	Validators []Validator
	// Services maps service names to single-line service settings.
	Services map[string]string
}

var consensusFields = []struct {
	key      string
	optional bool
	get      func(*Consensus) *uint64
}{
	{"Majority-Count", true, func(c *Consensus) *uint64 { return &c.MajorityCount }},
	{"Max-Message-Len", false, func(c *Consensus) *uint64 { return &c.MaxMessageLen }},
	{"Max-Propose-Timeout", false, func(c *Consensus) *uint64 { return &c.MaxProposeTimeout }},
	{"Min-Propose-Timeout", false, func(c *Consensus) *uint64 { return &c.MinProposeTimeout }},
	{"Peers-Timeout", false, func(c *Consensus) *uint64 { return &c.PeersTimeout }},
	{"Propose-Timeout-Threshold", false, func(c *Consensus) *uint64 { return &c.ProposeTimeoutThreshold }},
	{"Round-Timeout", false, func(c *Consensus) *uint64 { return &c.RoundTimeout }},
	{"Status-Timeout", false, func(c *Consensus) *uint64 { return &c.StatusTimeout }},
	{"Txs-Block-Limit", false, func(c *Consensus) *uint64 { return &c.TxsBlockLimit }},
}

func validatorKey(i int) string { return fmt.Sprintf("Validator-%03d", i) }

// Render produces the canonical bytes of s. It does not run Validate.
func Render(s *Stored) ([]byte, error) {
	var b strings.Builder
	b.WriteString(Preamble + "\n")

	b.WriteString("META\n")
	fmt.Fprintf(&b, "Actual-From: %d\n", s.ActualFrom)
	prev := "none"
	if s.PreviousConfig.Defined() {
		prev = s.PreviousConfig.String()
	}
	fmt.Fprintf(&b, "Previous-Config: %s\n", prev)
	b.WriteString("Spec: " + SpecName + "\n")
	b.WriteString("Version: " + SpecVersion + "\n")

	b.WriteString("\nCONSENSUS\n")
	c := s.Consensus
	for _, f := range consensusFields {
		v := *f.get(&c)
		if f.optional && v == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s: %d\n", f.key, v)
	}

	b.WriteString("\nVALIDATORS\n")
	if len(s.Validators) > MaxValidators {
		return nil, newError(KindRender, "CFG-VAL-021", "too many validators")
	}
	for i, v := range s.Validators {
		fmt.Fprintf(&b, "%s: %s %s\n", validatorKey(i), v.ConsensusKey, v.ServiceKey)
	}

	b.WriteString("\nSERVICES\n")
	names := make([]string, 0, len(s.Services))
	for name := range s.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		val := s.Services[name]
		if !validKey(name) || !validValue(val) {
			return nil, newError(KindRender, "CFG-VAL-040", fmt.Sprintf("service entry %q cannot be rendered", name))
		}
		fmt.Fprintf(&b, "%s: %s\n", name, val)
	}

	b.WriteString(Postamble)
	return []byte(b.String()), nil
}

// Encode validates s and renders it.
func Encode(s *Stored) ([]byte, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}
	return Render(s)
}

// Hash returns the CID of the canonical bytes of s.
func Hash(s *Stored) (cid.Cid, error) {
	b, err := Render(s)
	if err != nil {
		return cid.Undef, err
	}
	return cidutil.Sum(b)
}

// Parse decodes canonical configuration bytes and validates them.
func Parse(data []byte) (*Stored, error) {
	if err := applyByteRules(data); err != nil {
		return nil, err
	}
	sections, err := splitSections(data)
	if err != nil {
		return nil, err
	}
	s, err := decode(sections)
	if err != nil {
		return nil, err
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	rendered, err := Render(s)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(rendered, data) {
		return nil, newError(KindCanonical, "CFG-CANON-100", "configuration is not in canonical form")
	}
	return s, nil
}

func decode(sections []section) (*Stored, error) {
	s := &Stored{Services: map[string]string{}}

	meta := sections[0].lookup()
	if err := requireKeys("META", meta, []string{"Actual-From", "Previous-Config", "Spec", "Version"}, nil); err != nil {
		return nil, err
	}
	if meta["Spec"] != SpecName {
		return nil, newError(KindValidation, "CFG-VAL-001", "unsupported Spec "+meta["Spec"])
	}
	if meta["Version"] != SpecVersion {
		return nil, newError(KindValidation, "CFG-VAL-002", "unsupported Version "+meta["Version"])
	}
	h, err := parseU64("Actual-From", meta["Actual-From"])
	if err != nil {
		return nil, err
	}
	s.ActualFrom = h
	if prev := meta["Previous-Config"]; prev != "none" {
		id, err := cidutil.Parse(prev)
		if err != nil {
			return nil, wrapError(KindValidation, "CFG-VAL-030", "invalid Previous-Config", err)
		}
		s.PreviousConfig = id
	}

	cons := sections[1].lookup()
	var required, optional []string
	for _, f := range consensusFields {
		if f.optional {
			optional = append(optional, f.key)
		} else {
			required = append(required, f.key)
		}
	}
	if err := requireKeys("CONSENSUS", cons, required, optional); err != nil {
		return nil, err
	}
	for _, f := range consensusFields {
		raw, ok := cons[f.key]
		if !ok {
			continue
		}
		v, err := parseU64(f.key, raw)
		if err != nil {
			return nil, err
		}
		*f.get(&s.Consensus) = v
	}

	for i, p := range sections[2].pairs {
		if p.key != validatorKey(i) {
			return nil, newError(KindParse, "CFG-STR-042", "validators must be numbered Validator-000 upwards without gaps")
		}
		consensusKey, serviceKey, ok := strings.Cut(p.value, " ")
		if !ok || strings.Contains(serviceKey, " ") {
			return nil, newError(KindParse, "CFG-STR-043", p.key+" must hold two keys separated by one space")
		}
		ck, err := keys.ParseTaggedKey(consensusKey)
		if err != nil {
			return nil, wrapError(KindValidation, "CFG-KEY-001", p.key+" consensus key", err)
		}
		sk, err := keys.ParseTaggedKey(serviceKey)
		if err != nil {
			return nil, wrapError(KindValidation, "CFG-KEY-002", p.key+" service key", err)
		}
		s.Validators = append(s.Validators, Validator{ConsensusKey: ck, ServiceKey: sk})
	}

	for _, p := range sections[3].pairs {
		s.Services[p.key] = p.value
	}
	return s, nil
}

func requireKeys(section string, got map[string]string, required, optional []string) error {
	allowed := make(map[string]bool, len(required)+len(optional))
	for _, k := range required {
		if _, ok := got[k]; !ok {
			return newError(KindParse, "CFG-STR-041", section+" is missing "+k)
		}
		allowed[k] = true
	}
	for _, k := range optional {
		allowed[k] = true
	}
	for k := range got {
		if !allowed[k] {
			return newError(KindParse, "CFG-STR-040", section+" has unknown key "+k)
		}
	}
	return nil
}

// parseU64 accepts decimal digits only, without sign or leading zeros.
func parseU64(key, s string) (uint64, error) {
	if s == "" || (len(s) > 1 && s[0] == '0') || s[0] == '+' {
		return 0, newError(KindCanonical, "CFG-CANON-030", key+" is not a canonical integer")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, wrapError(KindParse, "CFG-STR-044", key+" is not an unsigned 64-bit integer", err)
	}
	return v, nil
}
