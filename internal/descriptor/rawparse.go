package descriptor

import "errors"

var errTruncatedDescriptor = errors.New("descriptor: item prefix declares more data than is present")

// ParseRaw walks a binary HID report descriptor's short items (USB HID
// 1.11 §6.2.2) and classifies the Main items it finds into a Set. It
// stands in for a full descriptor parser and does not aim for full HID grammar
// fidelity (long items, push/pop stacks, delimiters, and most of the
// Global/Local item catalogue beyond what IPTS descriptors use are not
// handled), only enough to recover Report/Usage/Size per the small set
// of items an IPTS digitizer's descriptor actually emits, grounded on
// original_source/IPTSDaemon/hid/descriptor.cpp's item-tag dispatch
// (which wraps the same hidrd library this stands in for).
func ParseRaw(raw []byte) (Set, error) {
	var (
		reports []Report

		usagePage uint16
		reportID  uint8
		haveID    bool
		repSize   int
		repCount  int
		usages    []Usage

		fieldBits = map[uint8]map[ReportType]int{}
		fieldUse  = map[uint8]map[ReportType][]Usage{}
	)

	addBits := func(id uint8, typ ReportType, bits int, use []Usage) {
		if fieldBits[id] == nil {
			fieldBits[id] = map[ReportType]int{}
			fieldUse[id] = map[ReportType][]Usage{}
		}
		fieldBits[id][typ] += bits
		fieldUse[id][typ] = append(fieldUse[id][typ], use...)
	}

	i := 0
	for i < len(raw) {
		prefix := raw[i]
		i++

		size := int(prefix & 0x03)
		if size == 3 {
			size = 4
		}
		typ := (prefix >> 2) & 0x03
		tag := (prefix >> 4) & 0x0F

		if i+size > len(raw) {
			return Set{}, errTruncatedDescriptor
		}
		data := raw[i : i+size]
		i += size
		val := uint32(0)
		for j, b := range data {
			val |= uint32(b) << (8 * j)
		}

		const (
			typeMain   = 0
			typeGlobal = 1
			typeLocal  = 2
		)

		switch typ {
		case typeGlobal:
			switch tag {
			case 0x0: // Usage Page
				usagePage = uint16(val)
			case 0x7: // Report Size
				repSize = int(val)
			case 0x8: // Report ID
				reportID = uint8(val)
				haveID = true
			case 0x9: // Report Count
				repCount = int(val)
			}
		case typeLocal:
			if tag == 0x0 { // Usage
				usages = append(usages, Usage{Page: usagePage, ID: uint16(val)})
			}
		case typeMain:
			var mType ReportType
			switch tag {
			case 0x8:
				mType = Input
			case 0x9:
				mType = Output
			case 0xB:
				mType = Feature
			default: // Collection (0xA), End Collection (0xC), etc: no field
				usages = nil
				continue
			}

			if haveID {
				addBits(reportID, mType, repSize*repCount, usages)
			}
			usages = nil
		}
	}

	for id, byType := range fieldBits {
		for typ, bits := range byType {
			// Input reports are read with their report ID byte in front,
			// so their size counts it. Feature and Output sizes are the
			// payload only; HidrawDevice adds the ID byte to feature
			// ioctls itself.
			size := (bits + 7) / 8
			if typ == Input {
				size++
			}
			reports = append(reports, NewReport(id, typ, size, fieldUse[id][typ]))
		}
	}

	return Set{Reports: reports}, nil
}
