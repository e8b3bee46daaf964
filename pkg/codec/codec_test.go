package codec

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbehnke/turbocodec/internal/testhelpers"
	"github.com/dbehnke/turbocodec/pkg/logger"
	"github.com/dbehnke/turbocodec/pkg/turbo"
)

const helloWorldPacket = "0000006048656c6c6f20576f726c6421" +
	"784b44444656b5463e444ae1" +
	"d99a8e99d282ab2ce0176aaf"

func newTestCodec(t *testing.T, mutate func(*Config), opts ...Option) *Codec {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	return c
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.ConstraintLength)
	assert.Equal(t, 8, cfg.Iterations)
	assert.Equal(t, []uint32{07, 05}, cfg.Generators)
	assert.Equal(t, uint32(07), cfg.Feedback)
	assert.Equal(t, uint64(1346), cfg.Seed)
	assert.Equal(t, "mt19937", cfg.Interleaver)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"constraint length", func(c *Config) { c.ConstraintLength = 1 }, "constraint_length"},
		{"iterations", func(c *Config) { c.Iterations = 0 }, "iterations"},
		{"no generators", func(c *Config) { c.Generators = nil }, "generators"},
		{"interleaver", func(c *Config) { c.Interleaver = "lcg" }, "interleaver"},
		{"seed too wide", func(c *Config) { c.Seed = 1 << 40 }, "seed"},
		{"workers", func(c *Config) { c.Workers = -1 }, "workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			var cfgErr *turbo.ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestWideSeedAllowedForSplitMix64(t *testing.T) {
	newTestCodec(t, func(c *Config) {
		c.Interleaver = "splitmix64"
		c.Seed = 1 << 40
	})
}

func TestEncodeGoldenPacket(t *testing.T) {
	c := newTestCodec(t, nil)

	packet, err := c.Encode([]byte("Hello World!"))
	require.NoError(t, err)
	assert.Equal(t, helloWorldPacket, hex.EncodeToString(packet))
}

func TestEncodeGoldenPacketSplitMix64(t *testing.T) {
	c := newTestCodec(t, func(c *Config) { c.Interleaver = "splitmix64" })

	packet, err := c.Encode([]byte("Hello World!"))
	require.NoError(t, err)
	// Systematic and first parity streams do not depend on the interleaver.
	assert.Equal(t, helloWorldPacket[:56]+"9271f2fa2056ee3fb7293fa3", hex.EncodeToString(packet))
}

func TestRoundTrip(t *testing.T) {
	messages := [][]byte{
		[]byte("H"),
		[]byte("Hello World!"),
		[]byte(strings.Repeat("Hello, world! ", 10)),
		bytes.Repeat([]byte{0x00}, 33),
		bytes.Repeat([]byte{0xff}, 33),
	}

	for _, alg := range []string{"mt19937", "splitmix64"} {
		c := newTestCodec(t, func(c *Config) { c.Interleaver = alg })
		for _, msg := range messages {
			packet, err := c.Encode(msg)
			require.NoError(t, err)
			require.Len(t, packet, HeaderSize+3*len(msg))

			got, err := c.Decode(packet)
			require.NoError(t, err)
			assert.Equal(t, msg, got, "alg=%s len=%d", alg, len(msg))
		}
	}
}

func TestEmptyMessage(t *testing.T) {
	c := newTestCodec(t, nil)

	packet, err := c.Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, packet)

	got, err := c.Decode(packet)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeCorrectsByteCorruption(t *testing.T) {
	msg := []byte(strings.Repeat("Hello, world! ", 10))
	c := newTestCodec(t, nil)

	packet, err := c.Encode(msg)
	require.NoError(t, err)
	require.Len(t, packet, 424)
	require.Equal(t, "15fd9f29f0", hex.EncodeToString(packet[200:205]))

	corrupted := testhelpers.OverwriteBytes(packet, 200, 82, 238, 50, 214, 193)
	got, err := c.Decode(corrupted)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

var scatteredFlips = []int{
	185, 229, 269, 274, 285, 318, 328, 384, 403, 417, 539, 649, 911, 946, 1017,
	1358, 1529, 1649, 1656, 1744, 1770, 1808, 2110, 2226, 2289, 2348, 2395,
	2419, 2430, 2601, 2615, 2698,
}

func TestDecodeCorrectsScatteredBitFlips(t *testing.T) {
	msg := []byte(strings.Repeat("Hello, world! ", 10))

	for _, iterations := range []int{1, 8} {
		c := newTestCodec(t, func(c *Config) { c.Iterations = iterations })
		packet, err := c.Encode(msg)
		require.NoError(t, err)

		corrupted := testhelpers.FlipBits(packet, scatteredFlips...)
		require.Equal(t, len(scatteredFlips), testhelpers.BitErrors(packet, corrupted))

		got, err := c.Decode(corrupted)
		require.NoError(t, err)
		assert.Equal(t, msg, got, "iterations=%d", iterations)

		// 15 of the flips land in the systematic stream.
		assert.Equal(t, uint64(15), c.Stats().CorrectedBits)
	}
}

func TestDecodeUncorrectableReturnsBestEffort(t *testing.T) {
	msg := []byte("Hello World!")
	c := newTestCodec(t, nil)
	packet, err := c.Encode(msg)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	positions := testhelpers.RandomBitPositions(rng, 140, HeaderSize*8, len(packet)*8)
	got, err := c.Decode(testhelpers.FlipBits(packet, positions...))
	require.NoError(t, err)
	assert.Len(t, got, len(msg))
}

func TestDecodeSoft(t *testing.T) {
	msg := []byte("turbo codes!")
	c := newTestCodec(t, nil)

	streams, err := c.EncodeBits(BytesToBits(msg))
	require.NoError(t, err)

	m := turbo.NewAWGNReliability(1.0)
	sys, p1, p2 := m.Map(streams.Systematic), m.Map(streams.Parity1), m.Map(streams.Parity2)
	for _, i := range []int{3, 17, 60} {
		sys[i] = -sys[i]
	}
	p1[8], p2[30] = -p1[8], -p2[30]

	got, err := c.DecodeSoft(sys, p1, p2)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestDecodeSoftRecoversErasures(t *testing.T) {
	msg := []byte("turbo codes!")
	c := newTestCodec(t, nil)

	streams, err := c.EncodeBits(BytesToBits(msg))
	require.NoError(t, err)

	m := turbo.NewAWGNReliability(1.0)
	sys := m.Map(streams.Systematic)
	for i := 0; i < len(sys); i += 7 {
		sys[i] = 0
	}

	got, err := c.DecodeSoft(sys, m.Map(streams.Parity1), m.Map(streams.Parity2))
	require.NoError(t, err)
	assert.Equal(t, msg, got)
	assert.Zero(t, c.Stats().CorrectedBits, "erased bits are not corrections")
}

func TestDecodeSoftRejectsNonFiniteLLRs(t *testing.T) {
	tests := []struct {
		name   string
		stream int
		value  float64
	}{
		{"positive infinity in systematic", 0, math.Inf(1)},
		{"negative infinity in parity1", 1, math.Inf(-1)},
		{"NaN in parity2", 2, math.NaN()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCodec(t, nil)
			streams, err := c.EncodeBits(BytesToBits([]byte("inf")))
			require.NoError(t, err)

			m := turbo.UnitReliability{}
			llrs := [][]float64{m.Map(streams.Systematic), m.Map(streams.Parity1), m.Map(streams.Parity2)}
			llrs[tt.stream][5] = tt.value

			_, err = c.DecodeSoft(llrs[0], llrs[1], llrs[2])
			require.Error(t, err)
			assert.Contains(t, err.Error(), "not finite")
			assert.Equal(t, uint64(1), c.Stats().Errors)
			assert.Zero(t, c.Stats().BitsDecoded)
		})
	}
}

func TestDecodeSoftRejectsUnevenStreams(t *testing.T) {
	c := newTestCodec(t, nil)
	_, err := c.DecodeSoft(make([]float64, 8), make([]float64, 8), make([]float64, 7))
	assert.Error(t, err)
	assert.Equal(t, uint64(1), c.Stats().Errors)
}

func TestWithLLRMapper(t *testing.T) {
	msg := []byte("Hello World!")
	c := newTestCodec(t, nil, WithLLRMapper(turbo.NewAWGNReliability(3)))

	packet, err := c.Encode(msg)
	require.NoError(t, err)
	got, err := c.Decode(testhelpers.FlipBits(packet, 40, 150, 300))
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestDecodeMalformedPacket(t *testing.T) {
	var logs bytes.Buffer
	c := newTestCodec(t, nil, WithLogger(logger.NewTestLogger(&logs)))

	_, err := c.Decode([]byte{0, 0, 0, 96, 1, 2, 3})
	var malformed *MalformedPacketError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, uint64(96), malformed.Declared)
	assert.Equal(t, uint64(24), malformed.Available)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.DecodeCalls)
	assert.Equal(t, uint64(1), stats.MalformedPackets)
	assert.Zero(t, stats.BitsDecoded)
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), `"component":"codec"`)
}

func TestStatsCounters(t *testing.T) {
	c := newTestCodec(t, nil)

	packet, err := c.Encode([]byte("Hello World!"))
	require.NoError(t, err)
	_, err = c.Decode(packet)
	require.NoError(t, err)
	_, err = c.Decode(packet)
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.EncodeCalls)
	assert.Equal(t, uint64(2), stats.DecodeCalls)
	assert.Equal(t, uint64(96), stats.BitsEncoded)
	assert.Equal(t, uint64(192), stats.BitsDecoded)
	assert.Zero(t, stats.CorrectedBits)
	assert.Zero(t, stats.Errors)
}

func TestInterleaverCacheReturnsSameInstance(t *testing.T) {
	c := newTestCodec(t, nil)

	a, err := c.Interleaver(96)
	require.NoError(t, err)
	b, err := c.Interleaver(96)
	require.NoError(t, err)
	assert.Same(t, a, b)

	for n := 1; n <= 2*maxCachedInterleavers; n++ {
		_, err := c.Interleaver(n)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, int(c.cached.Load()), maxCachedInterleavers)
}

func TestInterleaverCacheBoundedUnderConcurrency(t *testing.T) {
	c := newTestCodec(t, nil)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for n := 1; n <= 4*maxCachedInterleavers; n++ {
				_, err := c.Interleaver(n + g%3)
				assert.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()

	stored := 0
	c.interleavers.Range(func(_, _ any) bool {
		stored++
		return true
	})
	assert.LessOrEqual(t, stored, maxCachedInterleavers)
	assert.Equal(t, int32(stored), c.cached.Load())
}

func TestConfigReturnsCopy(t *testing.T) {
	c := newTestCodec(t, nil)
	cfg := c.Config()
	cfg.Generators[0] = 0
	assert.Equal(t, uint32(07), c.Config().Generators[0])
	assert.Positive(t, cfg.Workers)
}

func TestConcurrentUse(t *testing.T) {
	c := newTestCodec(t, nil)
	errs := make(chan error, 16)

	for i := 0; i < cap(errs); i++ {
		go func(i int) {
			msg := []byte(fmt.Sprintf("message %02d", i))
			packet, err := c.Encode(msg)
			if err != nil {
				errs <- err
				return
			}
			got, err := c.Decode(packet)
			if err == nil && !bytes.Equal(got, msg) {
				err = fmt.Errorf("message %d decoded as %q", i, got)
			}
			errs <- err
		}(i)
	}

	for i := 0; i < cap(errs); i++ {
		assert.NoError(t, <-errs)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c := newTestCodec(t, nil, WithMetrics(metrics))

	packet, err := c.Encode([]byte("Hello World!"))
	require.NoError(t, err)
	_, err = c.Decode(testhelpers.FlipBits(packet, 40))
	require.NoError(t, err)
	_, err = c.Decode([]byte{0, 0})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues(OpEncode, ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues(OpDecode, ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues(OpDecode, ResultMalformed)))
	assert.Equal(t, 96.0, testutil.ToFloat64(metrics.bits.WithLabelValues(OpDecode)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.correctedBits))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.duration))
}
