package firewall

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/eleven-am/fwmatch/internal/components"
	"github.com/eleven-am/fwmatch/internal/domain"
)

// Store holds one index per (direction, protocol) bucket. A built Store is
// never mutated and may be queried from any number of goroutines.
type Store struct {
	mode    domain.IndexMode
	buckets [domain.BucketCount]domain.BucketIndex
	rules   int
}

type BucketReport struct {
	Bucket domain.BucketKey
	Rules  int
	Tree   *components.TreeShape
}

// Build parses every record and compiles the four buckets. Any malformed
// record fails the whole build.
func Build(records []domain.RuleRecord, mode domain.IndexMode) (*Store, error) {
	if mode != domain.ModeTree && mode != domain.ModeLinear {
		return nil, fmt.Errorf("build store: unsupported index mode %s", mode)
	}

	var grouped [domain.BucketCount][]domain.Rule
	for _, rec := range records {
		key, rule, err := components.ParseRecord(rec)
		if err != nil {
			return nil, err
		}
		grouped[key.Index()] = append(grouped[key.Index()], rule)
	}

	s := &Store{mode: mode, rules: len(records)}
	var g errgroup.Group
	for i := range grouped {
		g.Go(func() error {
			s.buckets[i] = newBucketIndex(grouped[i], mode)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return s, nil
}

func newBucketIndex(rules []domain.Rule, mode domain.IndexMode) domain.BucketIndex {
	if mode == domain.ModeLinear {
		return components.NewLinearIndex(rules)
	}
	return components.NewRangeTree(rules)
}

func emptyStore(mode domain.IndexMode) *Store {
	s := &Store{mode: mode}
	for i := range s.buckets {
		s.buckets[i] = newBucketIndex(nil, mode)
	}
	return s
}

// AcceptPacket reports whether the bucket for direction and protocol permits
// ip and port. Ports outside 0-65535 are never permitted.
func (s *Store) AcceptPacket(direction, protocol string, port int, ip string) (bool, error) {
	key, err := domain.ParseBucketKey(direction, protocol)
	if err != nil {
		return false, err
	}
	addr, err := components.ParseIPv4(ip)
	if err != nil {
		return false, err
	}
	if port < 0 || port > 65535 {
		return false, nil
	}
	return s.Accept(key, addr, uint16(port)), nil
}

func (s *Store) Accept(key domain.BucketKey, ip uint32, port uint16) bool {
	return s.buckets[key.Index()].Contains(ip, port)
}

func (s *Store) Mode() domain.IndexMode {
	return s.mode
}

func (s *Store) Len() int {
	return s.rules
}

func (s *Store) Report() []BucketReport {
	reports := make([]BucketReport, 0, domain.BucketCount)
	for _, key := range domain.AllBuckets() {
		index := s.buckets[key.Index()]
		report := BucketReport{Bucket: key, Rules: index.Len()}
		if tree, ok := index.(*components.RangeTree); ok {
			shape := tree.Shape()
			report.Tree = &shape
		}
		reports = append(reports, report)
	}
	return reports
}
