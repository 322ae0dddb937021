package field

import (
	"encoding/binary"
	"fmt"
	"sort"

	"golang.org/x/text/language"
)

// LanguageSet dumps as a 2-byte total-payload-length prefix followed by a
// sequence of (1-byte length, BCP-47 tag bytes) entries, tags sorted by
// their canonical string form so two sets containing the same languages
// always dump identically regardless of insertion order.

func languageSetTags(v any) ([]language.Tag, error) {
	switch t := v.(type) {
	case []language.Tag:
		return t, nil
	case []string:
		tags := make([]language.Tag, 0, len(t))
		for _, s := range t {
			tag, err := language.Parse(s)
			if err != nil {
				return nil, fmt.Errorf("field: invalid language tag %q: %w", s, err)
			}
			tags = append(tags, tag)
		}
		return tags, nil
	default:
		return nil, fmt.Errorf("field: cannot convert %T to LanguageSet", v)
	}
}

func sortedTagStrings(tags []language.Tag) []string {
	strs := make([]string, len(tags))
	for i, t := range tags {
		strs[i] = t.String()
	}
	sort.Strings(strs)
	return strs
}

func languageSetByteLen(v any) (int, error) {
	tags, err := languageSetTags(v)
	if err != nil {
		return 0, err
	}
	n := 2
	for _, s := range sortedTagStrings(tags) {
		n += 1 + len(s)
	}
	return n, nil
}

func dumpLanguageSet(spec Spec, v any, buf []byte) (int, error) {
	tags, err := languageSetTags(v)
	if err != nil {
		return 0, err
	}
	strs := sortedTagStrings(tags)
	payload := 0
	for _, s := range strs {
		payload += 1 + len(s)
	}
	total := 2 + payload
	if len(buf) < padWords(total) {
		return 0, fmt.Errorf("field: buffer too small for LanguageSet")
	}
	binary.LittleEndian.PutUint16(buf[:2], uint16(payload))
	off := 2
	for _, s := range strs {
		if len(s) > 255 {
			return 0, fmt.Errorf("field: language tag %q too long", s)
		}
		buf[off] = byte(len(s))
		off++
		copy(buf[off:], s)
		off += len(s)
	}
	clearPad(buf, total)
	return padWords(total), nil
}

func loadLanguageSet(spec Spec, buf []byte) (any, int, error) {
	if len(buf) < 2 {
		return nil, 0, fmt.Errorf("field: language set length prefix truncated")
	}
	payload := int(binary.LittleEndian.Uint16(buf[:2]))
	total := 2 + payload
	if len(buf) < total {
		return nil, 0, fmt.Errorf("field: language set payload truncated")
	}
	var tags []language.Tag
	off := 2
	for off < total {
		n := int(buf[off])
		off++
		if off+n > total {
			return nil, 0, fmt.Errorf("field: language set entry truncated")
		}
		tag, err := language.Parse(string(buf[off : off+n]))
		if err != nil {
			return nil, 0, fmt.Errorf("field: invalid language tag in dump: %w", err)
		}
		tags = append(tags, tag)
		off += n
	}
	return tags, padWords(total), nil
}

// compareLanguageSet orders by the encoded (sorted-tag) byte sequence
// directly, skipping the 2-byte length prefix so a set with more leading
// tags that share a common prefix with a shorter set sorts after it.
func compareLanguageSet(spec Spec, a, b []byte) (int, error) {
	la, err := byteLenFromBuffer(spec, a)
	if err != nil {
		return 0, err
	}
	lb, err := byteLenFromBuffer(spec, b)
	if err != nil {
		return 0, err
	}
	pa, pb := a[2:la], b[2:lb]
	n := len(pa)
	if len(pb) < n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		if pa[i] != pb[i] {
			if pa[i] < pb[i] {
				return -1, nil
			}
			return 1, nil
		}
	}
	switch {
	case len(pa) < len(pb):
		return -1, nil
	case len(pa) > len(pb):
		return 1, nil
	default:
		return 0, nil
	}
}
