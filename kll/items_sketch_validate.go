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
	"encoding/binary"

	"github.com/quantiles/kllsketch/common"
	"github.com/quantiles/kllsketch/internal"
)

// preambleLayout identifies which of the four wire-format shapes a
// preamble's (preInts, serVer) pair encodes.
type preambleLayout struct {
	preInts int
	serVer  int
}

var (
	_COMPACT_EMPTY  = preambleLayout{_PREAMBLE_INTS_EMPTY_SINGLE, _SERIAL_VERSION_EMPTY_FULL}
	_COMPACT_SINGLE = preambleLayout{_PREAMBLE_INTS_EMPTY_SINGLE, _SERIAL_VERSION_SINGLE}
	_COMPACT_FULL   = preambleLayout{_PREAMBLE_INTS_FULL, _SERIAL_VERSION_EMPTY_FULL}
	_UPDATABLE      = preambleLayout{_PREAMBLE_INTS_FULL, _SERIAL_VERSION_UPDATABLE}

	// knownPreambleLayouts maps every (preInts, serVer) pair this package
	// understands to its layout, so classifyPreambleLayout is a lookup
	// rather than a chain of nested conditionals.
	knownPreambleLayouts = map[[2]int]preambleLayout{
		{_PREAMBLE_INTS_EMPTY_SINGLE, _SERIAL_VERSION_EMPTY_FULL}: _COMPACT_EMPTY,
		{_PREAMBLE_INTS_EMPTY_SINGLE, _SERIAL_VERSION_SINGLE}:     _COMPACT_SINGLE,
		{_PREAMBLE_INTS_FULL, _SERIAL_VERSION_EMPTY_FULL}:         _COMPACT_FULL,
		{_PREAMBLE_INTS_FULL, _SERIAL_VERSION_UPDATABLE}:          _UPDATABLE,
	}
)

func (s preambleLayout) getPreInts() int { return s.preInts }

func (s preambleLayout) getSerVer() int { return s.serVer }

// classifyPreambleLayout maps a preamble's declared preInts/serVer pair to
// the layout it encodes, panicking on a combination this package has never
// been taught to serialize or read.
func classifyPreambleLayout(preInts, serVer int) preambleLayout {
	layout, ok := knownPreambleLayouts[[2]int{preInts, serVer}]
	if !ok {
		panic("invalid preamble ints and serial version combo")
	}
	return layout
}

type itemsSketchMemoryValidate[C comparable] struct {
	srcMem         []byte
	serde          common.ItemSketchSerde[C]
	preambleLayout preambleLayout

	// first 8 bytes of preamble
	preInts  int    //used by KllPreambleUtil
	serVer   int    //used by KllPreambleUtil
	familyID int    //used by KllPreambleUtil
	flags    int    //used by KllPreambleUtil
	k        uint16 //used multiple places
	m        uint8  //used multiple places
	//byte 7 is unused

	//Flag bits:
	emptyFlag        bool //used multiple places
	level0SortedFlag bool //used multiple places

	// depending on the layout, the next 8-16 bytes of the preamble, may be derived by assumption.
	// For example, if the layout is compact & empty, n = 0, if compact and single, n = 1.
	n         uint64 //8 bytes (if present), used multiple places
	minK      uint16 //2 bytes (if present), used multiple places
	numLevels uint8  //1 byte  (if present), used by KllPreambleUtil
	//skip unused byte
	levelsArr []uint32 //starts at byte 20, adjusted to include top index here, used multiple places

	// derived.
	sketchBytes int //used by KllPreambleUtil
	typeBytes   int //always 0 for generic
}

func newItemsSketchMemoryValidate[C comparable](srcMem []byte, serde common.ItemSketchSerde[C]) (*itemsSketchMemoryValidate[C], error) {
	capa := len(srcMem)
	if capa < 8 {
		return nil, newError(ErrInvalidFormat, "memory too small: %d", capa)
	}
	preInts := getPreInts(srcMem)
	serVer := getSerVer(srcMem)
	layout := classifyPreambleLayout(preInts, serVer)
	familyID := getFamilyID(srcMem)
	if familyID != internal.FamilyEnum.Kll.Id {
		return nil, newError(ErrInvalidFormat, "source not KLL: family id %d", familyID)
	}
	flags := getFlags(srcMem)
	k := getK(srcMem)
	m := getM(srcMem)
	err := checkM(m)
	if err != nil {
		return nil, err
	}
	err = checkK(k, m)
	if err != nil {
		return nil, err
	}
	//flags
	emptyFlag := getEmptyFlag(srcMem)
	singleFlag := getSingleItemFlag(srcMem)
	level0SortedFlag := getLevelZeroSortedFlag(srcMem)
	if emptyFlag && singleFlag {
		return nil, newError(ErrInvalidFormat, "preamble declares both empty and single-item flags")
	}
	typeBytes := 0
	vlid := &itemsSketchMemoryValidate[C]{
		srcMem:           srcMem,
		serde:            serde,
		preambleLayout:   layout,
		preInts:          preInts,
		serVer:           serVer,
		familyID:         familyID,
		flags:            flags,
		k:                k,
		m:                m,
		emptyFlag:        emptyFlag,
		level0SortedFlag: level0SortedFlag,
		typeBytes:        typeBytes,
	}
	err = vlid.validate()
	if err != nil {
		return nil, err
	}
	if int(capa) < vlid.sketchBytes {
		return nil, newError(ErrInvalidFormat, "declared sketch size %d exceeds supplied region of %d bytes", vlid.sketchBytes, capa)
	}
	return vlid, nil
}

func (vlid *itemsSketchMemoryValidate[C]) validate() error {
	switch vlid.preambleLayout {
	case _COMPACT_FULL, _UPDATABLE:
		if vlid.emptyFlag {
			return newError(ErrInvalidFormat, "empty flag set on a full preamble")
		}
		updatable := vlid.preambleLayout == _UPDATABLE
		if updatable != getUpdatableFlag(vlid.srcMem) {
			return newError(ErrInvalidFormat, "updatable flag does not match serial version")
		}
		vlid.n = getN(vlid.srcMem)
		vlid.minK = getMinK(vlid.srcMem)
		vlid.numLevels = getNumLevels(vlid.srcMem)
		if vlid.numLevels < 1 {
			return newError(ErrInvalidFormat, "numLevels must be >= 1: %d", vlid.numLevels)
		}
		// Get Levels Arr and add the last element
		vlid.levelsArr = make([]uint32, vlid.numLevels+1)
		for i := uint8(0); i < vlid.numLevels; i++ {
			vlid.levelsArr[i] = binary.LittleEndian.Uint32(vlid.srcMem[_DATA_START_ADR+i*4 : _DATA_START_ADR+i*4+4])
		}
		capacityItems := computeTotalItemCapacity(uint16(vlid.k), uint8(vlid.m), uint8(vlid.numLevels))
		vlid.levelsArr[vlid.numLevels] = capacityItems //load the last one
		for i := 0; i < len(vlid.levelsArr)-1; i++ {
			if vlid.levelsArr[i] > vlid.levelsArr[i+1] {
				return newError(ErrInvalidFormat, "levels array must be monotonically non-decreasing: %v", vlid.levelsArr)
			}
		}
		if updatable {
			// the updatable layout stores all numLevels+1 level entries, min, max
			// and the whole items array, free space included
			levelsBytes := (int(vlid.numLevels) + 1) * 4
			v, err := vlid.serde.SizeOfMany(vlid.srcMem, _DATA_START_ADR+levelsBytes, int(capacityItems)+2)
			if err != nil {
				return err
			}
			vlid.sketchBytes = _DATA_START_ADR + levelsBytes + v
			break
		}
		sb, err := computeSketchBytes(vlid.srcMem, vlid.levelsArr, vlid.typeBytes, vlid.serde)
		if err != nil {
			return err
		}
		vlid.sketchBytes = sb

	case _COMPACT_EMPTY:
		if !vlid.emptyFlag {
			return newError(ErrInvalidFormat, "empty serial version without empty flag set")
		}
		vlid.n = 0 //assumed
		vlid.minK = uint16(vlid.k)
		vlid.numLevels = 1 //assumed
		vlid.levelsArr = []uint32{uint32(vlid.k), uint32(vlid.k)}
		vlid.sketchBytes = _DATA_START_ADR_SINGLE_ITEM
	case _COMPACT_SINGLE:
		if vlid.emptyFlag {
			return newError(ErrInvalidFormat, "empty flag set on a single-item preamble")
		}
		vlid.n = 1 //assumed
		vlid.minK = uint16(vlid.k)
		vlid.numLevels = 1 //assumed
		vlid.levelsArr = []uint32{uint32(vlid.k) - 1, uint32(vlid.k)}
		v, err := vlid.serde.SizeOfMany(vlid.srcMem, _DATA_START_ADR_SINGLE_ITEM, 1)
		if err != nil {
			return err
		}
		vlid.sketchBytes = _DATA_START_ADR_SINGLE_ITEM + v
	default:
		return newError(ErrInvalidFormat, "invalid preamble ints and serial version combination")
	}
	return nil
}

func computeSketchBytes[C comparable](srcMem []byte, levelsArr []uint32, typeBytes int, serde common.ItemSketchSerde[C]) (int, error) {
	numLevels := len(levelsArr) - 1
	retainedItems := levelsArr[numLevels] - levelsArr[0]
	levelsLen := len(levelsArr) - 1
	numItems := retainedItems
	offsetBytes := _DATA_START_ADR + levelsLen*4
	if typeBytes == 1 {
		v, err := serde.SizeOfMany(srcMem, offsetBytes, int(numItems))
		if err != nil {
			return 0, err
		}
		offsetBytes += v + 2 //2 for min & max
	} else {
		v, err := serde.SizeOfMany(srcMem, offsetBytes, int(numItems)+2) //2 for min & max
		if err != nil {
			return 0, err
		}
		offsetBytes += v
	}
	return offsetBytes, nil
}
