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

package common

import (
	"encoding/binary"
	"math"
)

const float32ByteWidth = 4

// ItemSketchFloatSerDe serializes float32 sketch items as 4-byte
// little-endian IEEE 754 values.
type ItemSketchFloatSerDe struct{}

// ItemSketchFloatComparator returns a CompareFn for float32 items, either
// ascending (reverseOrder false) or descending.
var ItemSketchFloatComparator = func(reverseOrder bool) CompareFn[float32] {
	return func(a float32, b float32) bool {
		if reverseOrder {
			return a > b
		}
		return a < b
	}
}

func (f ItemSketchFloatSerDe) SizeOf(item float32) int {
	return float32ByteWidth
}

func (f ItemSketchFloatSerDe) SizeOfMany(mem []byte, offsetBytes int, numItems int) (int, error) {
	return numItems * float32ByteWidth, nil
}

func (f ItemSketchFloatSerDe) SerializeOneToSlice(item float32) []byte {
	out := make([]byte, float32ByteWidth)
	binary.LittleEndian.PutUint32(out, math.Float32bits(item))
	return out
}

func (f ItemSketchFloatSerDe) SerializeManyToSlice(items []float32) []byte {
	if len(items) == 0 {
		return []byte{}
	}
	out := make([]byte, float32ByteWidth*len(items))
	offset := 0
	for i := range items {
		binary.LittleEndian.PutUint32(out[offset:], math.Float32bits(items[i]))
		offset += float32ByteWidth
	}
	return out
}

func (f ItemSketchFloatSerDe) DeserializeManyFromSlice(mem []byte, offsetBytes int, numItems int) ([]float32, error) {
	if numItems == 0 {
		return []float32{}, nil
	}
	out := make([]float32, 0, numItems)
	for i := 0; i < numItems; i++ {
		out = append(out, math.Float32frombits(binary.LittleEndian.Uint32(mem[offsetBytes:])))
		offsetBytes += float32ByteWidth
	}
	return out, nil
}
