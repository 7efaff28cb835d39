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

	"github.com/quantiles/kllsketch/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryValidate_Empty(t *testing.T) {
	sk, err := NewFloat64Sketch(200)
	require.NoError(t, err)
	sl, err := sk.ToSlice()
	require.NoError(t, err)

	vlid, err := newItemsSketchMemoryValidate[float64](sl, sk.serde)
	require.NoError(t, err)
	assert.True(t, vlid.emptyFlag)
	assert.Equal(t, uint64(0), vlid.n)
	assert.Equal(t, _DATA_START_ADR_SINGLE_ITEM, vlid.sketchBytes)
}

func TestMemoryValidate_Single(t *testing.T) {
	sk, err := NewFloat64Sketch(200)
	require.NoError(t, err)
	require.NoError(t, sk.Update(5.0))
	sl, err := sk.ToSlice()
	require.NoError(t, err)

	vlid, err := newItemsSketchMemoryValidate[float64](sl, sk.serde)
	require.NoError(t, err)
	assert.False(t, vlid.emptyFlag)
	assert.Equal(t, uint64(1), vlid.n)
}

func TestMemoryValidate_FullCompact(t *testing.T) {
	sk, err := NewFloat64Sketch(20)
	require.NoError(t, err)
	for i := 0; i < 2000; i++ {
		require.NoError(t, sk.Update(float64(i)))
	}
	sl, err := sk.ToSlice()
	require.NoError(t, err)

	vlid, err := newItemsSketchMemoryValidate[float64](sl, sk.serde)
	require.NoError(t, err)
	assert.False(t, vlid.emptyFlag)
	assert.Equal(t, uint64(2000), vlid.n)
	assert.Equal(t, len(sl), vlid.sketchBytes)
}

func TestMemoryValidate_Updatable(t *testing.T) {
	sk, err := NewFloat64Sketch(20)
	require.NoError(t, err)
	for i := 0; i < 2000; i++ {
		require.NoError(t, sk.Update(float64(i)))
	}
	sl, err := sk.ToUpdatableSlice()
	require.NoError(t, err)

	vlid, err := newItemsSketchMemoryValidate[float64](sl, sk.serde)
	require.NoError(t, err)
	assert.False(t, vlid.emptyFlag)
	assert.Equal(t, uint64(2000), vlid.n)
	assert.Equal(t, len(sl), vlid.sketchBytes)
}

func TestMemoryValidate_TooSmall(t *testing.T) {
	_, err := newItemsSketchMemoryValidate[float64]([]byte{1, 2, 3}, common.ItemSketchFloatSerDe{})
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrInvalidFormat))
}

func TestMemoryValidate_WrongFamily(t *testing.T) {
	sk, err := NewFloat64Sketch(200)
	require.NoError(t, err)
	sl, err := sk.ToSlice()
	require.NoError(t, err)
	corrupted := append([]byte{}, sl...)
	corrupted[2] = 99 // family ID byte

	_, err = newItemsSketchMemoryValidate[float64](corrupted, sk.serde)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrInvalidFormat))
}

func TestMemoryValidate_TruncatedRegion(t *testing.T) {
	sk, err := NewFloat64Sketch(20)
	require.NoError(t, err)
	for i := 0; i < 2000; i++ {
		require.NoError(t, sk.Update(float64(i)))
	}
	sl, err := sk.ToSlice()
	require.NoError(t, err)

	_, err = newItemsSketchMemoryValidate[float64](sl[:len(sl)-10], sk.serde)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrInvalidFormat))
}
