package codec

import (
	"math/rand"
	"testing"
)

type benchState struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

type benchCheckpoint struct {
	Step     uint64            `json:"step"`
	Config   map[string]string `json:"config"`
	Tensors  []benchState      `json:"tensors"`
	Codebook []float32         `json:"codebook"`
	EMACount []float32         `json:"ema_count"`
}

func benchPayload() benchCheckpoint {
	rng := rand.New(rand.NewSource(1))
	randData := func(n int) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = rng.Float32()
		}
		return out
	}

	return benchCheckpoint{
		Step: 123456,
		Config: map[string]string{
			"num_codes": "64",
			"code_size": "16",
			"decay":     "0.99",
		},
		Tensors: []benchState{
			{Name: "encoder.0.w", Shape: []int{784, 256}, Data: randData(784 * 256)},
			{Name: "encoder.0.b", Shape: []int{256}, Data: randData(256)},
			{Name: "decoder.0.w", Shape: []int{256, 784}, Data: randData(256 * 784)},
		},
		Codebook: randData(64 * 16),
		EMACount: randData(64),
	}
}

func benchmarkCodecMarshal(b *testing.B, c Codec, v any) {
	b.Helper()
	b.ReportAllocs()

	warm, err := c.Marshal(v)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(warm)))

	var sink []byte
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out, err := c.Marshal(v)
		if err != nil {
			b.Fatal(err)
		}
		sink = out
	}
	_ = sink
}

func benchmarkCodecUnmarshal[T any](b *testing.B, c Codec, data []byte, dst *T) {
	b.Helper()
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))

	var v T
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.Unmarshal(data, &v); err != nil {
			b.Fatal(err)
		}
	}
	if dst != nil {
		*dst = v
	}
}

func BenchmarkCodec_Marshal_Checkpoint(b *testing.B) {
	payload := benchPayload()

	b.Run("stdlib", func(b *testing.B) { benchmarkCodecMarshal(b, JSON{}, payload) })
	b.Run("go-json", func(b *testing.B) { benchmarkCodecMarshal(b, GoJSON{}, payload) })
}

func BenchmarkCodec_Unmarshal_Checkpoint(b *testing.B) {
	jsonData := MustMarshal(JSON{}, benchPayload())

	b.Run("stdlib", func(b *testing.B) {
		var sink benchCheckpoint
		benchmarkCodecUnmarshal(b, JSON{}, jsonData, &sink)
		_ = sink
	})
	b.Run("go-json", func(b *testing.B) {
		var sink benchCheckpoint
		benchmarkCodecUnmarshal(b, GoJSON{}, jsonData, &sink)
		_ = sink
	})
}
