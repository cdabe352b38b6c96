package bencode_test

import (
	"bytes"
	"errors"
	"math/big"

	jackpal "github.com/jackpal/bencode-go"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/nrepl/bencode"
)

var _ = Describe("Encoding", func() {
	Describe("Encode()", func() {
		It("writes dictionary keys in insertion order", func() {
			value := bencode.NewDict().
				Set("a", 1).
				Set("b", []interface{}{2, []interface{}{3}}).
				Set("c", []interface{}{bencode.NewDict().Set("x", []interface{}{"y"})})

			b, err := bencode.Encode(value)
			Expect(err).To(Succeed())
			Expect(string(b)).To(Equal("d1:ai1e1:bli2eli3eee1:cld1:xl1:yeeee"))
		})

		It("does not sort keys", func() {
			b, err := bencode.Encode(bencode.NewDict().Set("zz", 1).Set("aa", 2))
			Expect(err).To(Succeed())
			Expect(string(b)).To(Equal("d2:zzi1e2:aai2ee"))
		})

		It("writes go maps with sorted keys", func() {
			b, err := bencode.Encode(map[string]interface{}{"b": "x", "a": 1})
			Expect(err).To(Succeed())
			Expect(string(b)).To(Equal("d1:ai1e1:b1:xe"))

			b, err = bencode.Encode(map[string]string{"op": "eval", "code": "(+ 1 2)"})
			Expect(err).To(Succeed())
			Expect(string(b)).To(Equal("d4:code7:(+ 1 2)2:op4:evale"))
		})

		It("counts the length of text in bytes", func() {
			b, err := bencode.Encode("á")
			Expect(err).To(Succeed())
			Expect(b).To(Equal([]byte("2:\xc3\xa1")))
		})

		It("encodes empty values", func() {
			Expect(bencode.Encode("")).To(Equal([]byte("0:")))
			Expect(bencode.Encode([]interface{}{})).To(Equal([]byte("le")))
			Expect(bencode.Encode(bencode.NewDict())).To(Equal([]byte("de")))
		})

		It("encodes integers of every size", func() {
			Expect(bencode.Encode(0)).To(Equal([]byte("i0e")))
			Expect(bencode.Encode(int8(-5))).To(Equal([]byte("i-5e")))
			Expect(bencode.Encode(uint64(18446744073709551615))).To(Equal([]byte("i18446744073709551615e")))

			huge, ok := new(big.Int).SetString("-123456789012345678901234567890", 10)
			Expect(ok).To(BeTrue())
			Expect(bencode.Encode(huge)).To(Equal([]byte("i-123456789012345678901234567890e")))
		})

		It("encodes raw bytes untouched", func() {
			Expect(bencode.Encode([]byte{0xff, 'e', ':'})).To(Equal([]byte("3:\xffe:")))
		})

		It("returns an EncodeError for unsupported values", func() {
			for _, v := range []interface{}{nil, true, 1.5, struct{}{}, []interface{}{1, false}, bencode.NewDict().Set("k", 2.5)} {
				_, err := bencode.Encode(v)

				var encodeErr *bencode.EncodeError
				Expect(errors.As(err, &encodeErr)).To(BeTrue(), "value %#v", v)
			}
		})
	})

	Describe("Encoder", func() {
		It("writes nothing when the value cannot be encoded", func() {
			var buf bytes.Buffer
			err := bencode.NewEncoder(&buf).Encode([]interface{}{"ok", 3.14})
			Expect(err).To(HaveOccurred())
			Expect(buf.Len()).To(BeZero())
		})

		It("writes values back to back", func() {
			var buf bytes.Buffer
			enc := bencode.NewEncoder(&buf)
			Expect(enc.Encode("a")).To(Succeed())
			Expect(enc.Encode("")).To(Succeed())
			Expect(buf.String()).To(Equal("1:a0:"))
		})
	})

	Describe("compatibility", func() {
		It("produces bytes another bencode implementation can read", func() {
			msg := bencode.NewDict().
				Set("op", "eval").
				Set("code", "(+ 1 2)").
				Set("id", 7).
				Set("status", []string{"done"})

			b, err := bencode.Encode(msg)
			Expect(err).To(Succeed())

			decoded, err := jackpal.Decode(bytes.NewReader(b))
			Expect(err).To(Succeed())
			Expect(decoded).To(Equal(map[string]interface{}{
				"op":     "eval",
				"code":   "(+ 1 2)",
				"id":     int64(7),
				"status": []interface{}{"done"},
			}))
		})
	})
})
