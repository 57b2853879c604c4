package inspect

import (
	"math"
	"sort"
)

// Stats summarizes all elements of an output tensor.
type Stats struct {
	Min  float64
	Max  float64
	Mean float64
	Std  float64 // population standard deviation
}

// Summarize computes Stats over values. An empty slice yields NaN fields.
func Summarize(values []float64) Stats {
	if len(values) == 0 {
		nan := math.NaN()
		return Stats{Min: nan, Max: nan, Mean: nan, Std: nan}
	}

	s := Stats{Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
		sum += v
	}
	s.Mean = sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - s.Mean
		sq += d * d
	}
	s.Std = math.Sqrt(sq / float64(len(values)))
	return s
}

// FirstChannelValues returns up to limit flattened values of [0, 0, ...].
// It returns nil for shapes of rank below 3.
func FirstChannelValues(shape []int, values []float64, limit int) []float64 {
	if len(shape) < 3 {
		return nil
	}
	n := 1
	for _, d := range shape[2:] {
		n *= d
	}
	n = min(n, limit, len(values))
	return values[:n]
}

// ChannelMean pairs a channel index with the mean of [0, c, :, :].
type ChannelMean struct {
	Channel int
	Mean    float64
}

// ChannelMeans returns the per-channel means of batch 0 for an NCHW shape.
// It returns nil unless the shape has rank 4.
func ChannelMeans(shape []int, values []float64) []ChannelMean {
	if len(shape) != 4 {
		return nil
	}
	channels, plane := shape[1], shape[2]*shape[3]
	if plane == 0 || len(values) < channels*plane {
		return nil
	}
	means := make([]ChannelMean, channels)
	for c := range channels {
		var sum float64
		for _, v := range values[c*plane : (c+1)*plane] {
			sum += v
		}
		means[c] = ChannelMean{Channel: c, Mean: sum / float64(plane)}
	}
	return means
}

// RankChannels sorts a copy of means by descending mean. Equal means keep
// channel order.
func RankChannels(means []ChannelMean) []ChannelMean {
	ranked := append([]ChannelMean(nil), means...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Mean > ranked[j].Mean
	})
	return ranked
}

// ChannelRank returns the 1-based position of channel in ranked, or 0 when
// it is absent.
func ChannelRank(ranked []ChannelMean, channel int) int {
	for i, cm := range ranked {
		if cm.Channel == channel {
			return i + 1
		}
	}
	return 0
}
