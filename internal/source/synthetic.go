package source

import (
	"context"
	"strconv"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/eleven-am/fwmatch/internal/domain"
)

var (
	directions = []string{"inbound", "outbound"}
	protocols  = []string{"tcp", "udp"}
)

// Generator produces random rule sets and packets for benchmarks and
// differential tests. The same seed yields the same sequence.
type Generator struct {
	faker *gofakeit.Faker
}

func NewGenerator(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Rules returns n records. Half the address tokens are ranges spanning up to
// 256 extra addresses; half the port tokens are ranges spanning up to 100
// extra ports.
func (g *Generator) Rules(n int) []domain.RuleRecord {
	records := make([]domain.RuleRecord, n)
	for i := range records {
		records[i] = domain.RuleRecord{
			Direction: g.faker.RandomString(directions),
			Protocol:  g.faker.RandomString(protocols),
			PortRange: g.portRange(),
			IPRange:   g.ipRange(),
			Source:    "synthetic:" + strconv.Itoa(i+1),
		}
	}
	return records
}

func (g *Generator) Packets(n int) []domain.Packet {
	packets := make([]domain.Packet, n)
	for i := range packets {
		packets[i] = domain.Packet{
			Direction: g.faker.RandomString(directions),
			Protocol:  g.faker.RandomString(protocols),
			Port:      g.faker.IntRange(1, 65535),
			IP:        domain.Uint32ToAddr(uint32(g.faker.IntRange(1, 0xffffffff))).String(),
		}
	}
	return packets
}

// Loader returns a loader producing a fresh batch of n rules on every call.
func (g *Generator) Loader(n int) func(ctx context.Context) ([]domain.RuleRecord, error) {
	return func(ctx context.Context) ([]domain.RuleRecord, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return g.Rules(n), nil
	}
}

func (g *Generator) ipRange() string {
	start := uint32(g.faker.IntRange(1, 0xffffffff))
	token := domain.Uint32ToAddr(start).String()
	if !g.faker.Bool() {
		return token
	}
	end := uint64(start) + uint64(g.faker.IntRange(1, 256))
	if end > 0xffffffff {
		end = 0xffffffff
	}
	return token + "-" + domain.Uint32ToAddr(uint32(end)).String()
}

func (g *Generator) portRange() string {
	port := g.faker.IntRange(1, 65535)
	if g.faker.Bool() {
		return strconv.Itoa(port)
	}
	end := g.faker.IntRange(port, min(65535, port+100))
	return strconv.Itoa(port) + "-" + strconv.Itoa(end)
}
