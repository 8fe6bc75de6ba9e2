package config

import (
	"fmt"

	"xdao.co/ledger/cidutil"
)

// Validate checks the semantic rules of a configuration.
func Validate(s *Stored) error {
	if s == nil {
		return newError(KindValidation, "CFG-VAL-000", "nil configuration")
	}
	c := s.Consensus
	switch {
	case c.RoundTimeout == 0:
		return newError(KindValidation, "CFG-VAL-011", "Round-Timeout must be positive")
	case c.StatusTimeout == 0:
		return newError(KindValidation, "CFG-VAL-011", "Status-Timeout must be positive")
	case c.PeersTimeout == 0:
		return newError(KindValidation, "CFG-VAL-011", "Peers-Timeout must be positive")
	case c.MaxProposeTimeout == 0:
		return newError(KindValidation, "CFG-VAL-011", "Max-Propose-Timeout must be positive")
	case c.TxsBlockLimit == 0:
		return newError(KindValidation, "CFG-VAL-012", "Txs-Block-Limit must be positive")
	case c.MaxMessageLen == 0:
		return newError(KindValidation, "CFG-VAL-012", "Max-Message-Len must be positive")
	case c.MinProposeTimeout > c.MaxProposeTimeout:
		return newError(KindValidation, "CFG-VAL-010", "Min-Propose-Timeout exceeds Max-Propose-Timeout")
	}

	n := uint64(len(s.Validators))
	if n == 0 {
		return newError(KindValidation, "CFG-VAL-020", "at least one validator is required")
	}
	if n > MaxValidators {
		return newError(KindValidation, "CFG-VAL-021", fmt.Sprintf("at most %d validators", MaxValidators))
	}
	seen := make(map[string]int, n)
	for i, v := range s.Validators {
		if err := v.ConsensusKey.Validate(); err != nil {
			return wrapError(KindValidation, "CFG-KEY-001", fmt.Sprintf("%s consensus key", validatorKey(i)), err)
		}
		if err := v.ServiceKey.Validate(); err != nil {
			return wrapError(KindValidation, "CFG-KEY-002", fmt.Sprintf("%s service key", validatorKey(i)), err)
		}
		id := v.ConsensusKey.String()
		if j, dup := seen[id]; dup {
			return newError(KindValidation, "CFG-VAL-022", fmt.Sprintf("%s repeats the consensus key of %s", validatorKey(i), validatorKey(j)))
		}
		seen[id] = i
	}
	if m := c.MajorityCount; m != 0 && (m > n || 3*m <= 2*n) {
		return newError(KindValidation, "CFG-VAL-023", fmt.Sprintf("Majority-Count %d outside (2/3 n, n] for n=%d", m, n))
	}

	if s.PreviousConfig.Defined() {
		if err := cidutil.Check(s.PreviousConfig); err != nil {
			return wrapError(KindValidation, "CFG-VAL-030", "invalid Previous-Config", err)
		}
	}
	for name, val := range s.Services {
		if !validKey(name) || !validValue(val) {
			return newError(KindValidation, "CFG-VAL-040", fmt.Sprintf("invalid service entry %q", name))
		}
	}
	return nil
}
