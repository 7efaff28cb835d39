/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package kll

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateWeighted_MatchesRepeatedUpdate(t *testing.T) {
	weighted, err := NewFloat64Sketch(200)
	require.NoError(t, err)
	plain, err := NewFloat64Sketch(200)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, weighted.UpdateWeighted(float64(i), 7))
		for j := 0; j < 7; j++ {
			require.NoError(t, plain.Update(float64(i)))
		}
	}

	assert.Equal(t, plain.GetN(), weighted.GetN())
	minW, err := weighted.GetMinItem()
	require.NoError(t, err)
	minP, err := plain.GetMinItem()
	require.NoError(t, err)
	assert.Equal(t, minP, minW)
}

func TestUpdateWeighted_ZeroIsNoop(t *testing.T) {
	sk, err := NewFloat64Sketch(200)
	require.NoError(t, err)
	require.NoError(t, sk.UpdateWeighted(5.0, 0))
	assert.True(t, sk.IsEmpty())
	assert.Equal(t, uint64(0), sk.GetN())
}

func TestUpdateSlice_MatchesSequentialUpdate(t *testing.T) {
	batch, err := NewInt64Sketch(200)
	require.NoError(t, err)
	sequential, err := NewInt64Sketch(200)
	require.NoError(t, err)

	vals := make([]int64, 500)
	for i := range vals {
		vals[i] = int64(i)
		require.NoError(t, sequential.Update(int64(i)))
	}
	require.NoError(t, batch.UpdateSlice(vals))

	assert.Equal(t, sequential.GetN(), batch.GetN())
	assert.Equal(t, sequential.GetNumRetained(), batch.GetNumRetained())
}

func TestRandomSource_AlternatingProducesReproducibleSerialization(t *testing.T) {
	build := func() (*ItemsSketch[int64], error) {
		sk, err := NewInt64Sketch(20)
		if err != nil {
			return nil, err
		}
		sk.SetRandomSource(NewAlternatingRandomSource(0))
		for i := 0; i < 2000; i++ {
			if err := sk.Update(int64(i)); err != nil {
				return nil, err
			}
		}
		return sk, nil
	}

	a, err := build()
	require.NoError(t, err)
	b, err := build()
	require.NoError(t, err)

	sliceA, err := a.ToSlice()
	require.NoError(t, err)
	sliceB, err := b.ToSlice()
	require.NoError(t, err)
	assert.Equal(t, sliceA, sliceB)
}

func TestMemorySegmentRequestService_FixedCapacityRejectsGrowth(t *testing.T) {
	sk, err := NewFloat64Sketch(20)
	require.NoError(t, err)
	sk.SetMemorySegmentRequestService(FixedCapacityMemoryService{MaxBytes: 64})

	var gotErr error
	for i := 0; i < 100000; i++ {
		if gotErr = sk.Update(float64(i)); gotErr != nil {
			break
		}
	}
	require.Error(t, gotErr)
	assert.True(t, IsKind(gotErr, ErrOutOfMemory))
}

func TestMemorySegmentRequestService_UnboundedNeverRejects(t *testing.T) {
	sk, err := NewFloat64Sketch(20)
	require.NoError(t, err)
	for i := 0; i < 20000; i++ {
		require.NoError(t, sk.Update(float64(i)))
	}
	assert.Equal(t, uint64(20000), sk.GetN())
}

func TestFixedWidthConstructors(t *testing.T) {
	f32, err := NewFloat32Sketch(200)
	require.NoError(t, err)
	require.NoError(t, f32.Update(float32(1.5)))

	f64, err := NewFloat64Sketch(200)
	require.NoError(t, err)
	require.NoError(t, f64.Update(1.5))

	i64, err := NewInt64Sketch(200)
	require.NoError(t, err)
	require.NoError(t, i64.Update(int64(42)))

	str, err := NewStringItemsSketch(200)
	require.NoError(t, err)
	require.NoError(t, str.Update("hello"))

	assert.Equal(t, uint64(1), f32.GetN())
	assert.Equal(t, uint64(1), f64.GetN())
	assert.Equal(t, uint64(1), i64.GetN())
	assert.Equal(t, uint64(1), str.GetN())
}

func TestErrorKinds(t *testing.T) {
	sk, err := NewFloat64Sketch(200)
	require.NoError(t, err)

	_, err = sk.GetMinItem()
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrSketchEmpty))

	require.NoError(t, sk.Update(1.0)) // has to be non-empty to reach the rank check
	_, err = sk.GetQuantile(2.0, true)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrInvalidArgument))

	_, err = NewKllItemsSketch[float64](200, _DEFAULT_M, nil, nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrInvalidArgument))
}

func TestKFromEpsilon_RoundTripsGetNormalizedRankError(t *testing.T) {
	sk, err := NewFloat64Sketch(200)
	require.NoError(t, err)

	for _, pmf := range []bool{false, true} {
		eps := sk.GetNormalizedRankError(pmf)
		k := KFromEpsilon(eps, pmf)
		assert.LessOrEqual(t, getNormalizedRankError(k, pmf), eps+1e-9)
	}
}

func TestKFromEpsilon_ClampsToKBounds(t *testing.T) {
	assert.Equal(t, _MIN_K, KFromEpsilon(0.9, false))
	assert.Equal(t, uint16(_MAX_K), KFromEpsilon(1e-12, false))
}

func TestQuantileBounds_BracketTrueQuantile(t *testing.T) {
	sk, err := NewInt64Sketch(200)
	require.NoError(t, err)
	for i := 0; i < 10000; i++ {
		require.NoError(t, sk.Update(int64(i)))
	}

	rank := 0.5
	lo, err := sk.GetQuantileLowerBound(rank)
	require.NoError(t, err)
	hi, err := sk.GetQuantileUpperBound(rank)
	require.NoError(t, err)
	exact, err := sk.GetQuantile(rank, true)
	require.NoError(t, err)

	assert.LessOrEqual(t, lo, exact)
	assert.LessOrEqual(t, exact, hi)
}
