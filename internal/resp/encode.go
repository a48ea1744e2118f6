package resp

import (
	"strconv"
)

// Encode is a total function from Value to its RESP wire bytes. It never
// fails: a Value with an unrecognised Type encodes as a generic RESP error,
// since producing malformed output for a malformed Value would violate the
// encoder's "does not fail" contract.
func Encode(v Value) []byte {
	var buf []byte
	return appendValue(buf, v)
}

func appendValue(buf []byte, v Value) []byte {
	switch v.Type {
	case SimpleString:
		buf = append(buf, '+')
		buf = append(buf, v.Str...)
		return appendCRLF(buf)
	case Error:
		buf = append(buf, '-')
		buf = append(buf, v.Str...)
		return appendCRLF(buf)
	case Integer:
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, v.Int, 10)
		return appendCRLF(buf)
	case Bulk:
		if v.BulkNull {
			return append(buf, "$-1\r\n"...)
		}
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(v.Bulk)), 10)
		buf = appendCRLF(buf)
		buf = append(buf, v.Bulk...)
		return appendCRLF(buf)
	case Array:
		if v.ArrayNull {
			return append(buf, "*-1\r\n"...)
		}
		buf = append(buf, '*')
		buf = strconv.AppendInt(buf, int64(len(v.Array)), 10)
		buf = appendCRLF(buf)
		for _, elem := range v.Array {
			buf = appendValue(buf, elem)
		}
		return buf
	default:
		buf = append(buf, "-ERR internal encoding error"...)
		return appendCRLF(buf)
	}
}

func appendCRLF(buf []byte) []byte {
	return append(buf, '\r', '\n')
}
