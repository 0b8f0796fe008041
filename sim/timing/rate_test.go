package timing

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DataRate", func() {
	DescribeTable("parsing",
		func(s string, expected DataRate) {
			rate, err := ParseDataRate(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(float64(rate)).To(BeNumerically("~", float64(expected), 1e-6))
		},
		Entry("mega bits", "5Mbps", 5*Mbps),
		Entry("kilo bits with slash", "14kb/s", 14*Kbps),
		Entry("large mega", "1000Mbps", 1*Gbps),
		Entry("giga", "1Gbps", Gbps),
		Entry("bytes", "2MBps", 16*Mbps),
		Entry("bare number", "1000000", Mbps),
		Entry("fraction", "0.5Mbps", 500*Kbps),
	)

	It("should reject bad rates", func() {
		for _, s := range []string{"", "Mbps", "5Xbps", "0Mbps", "-1Mbps"} {
			_, err := ParseDataRate(s)
			Expect(err).To(HaveOccurred(), s)
		}

		_, err := ParseDataRate("0bps")
		Expect(errors.Is(err, ErrZeroRate)).To(BeTrue())
	})

	It("should compute transmission time", func() {
		Expect(Mbps.TransmissionTime(1000)).To(BeNumerically("~", 0.008, 1e-12))
		Expect((5 * Mbps).TransmissionTime(1040)).
			To(BeNumerically("~", 1040*8/5e6, 1e-12))
	})

	It("should print with units", func() {
		Expect((5 * Mbps).String()).To(Equal("5Mbps"))
		Expect((14 * Kbps).String()).To(Equal("14Kbps"))
		Expect(DataRate(300).String()).To(Equal("300bps"))
	})

	It("should parse times", func() {
		t, err := ParseTime("2ms")
		Expect(err).NotTo(HaveOccurred())
		Expect(t).To(BeNumerically("~", 0.002, 1e-12))

		t, err = ParseTime("1.5")
		Expect(err).NotTo(HaveOccurred())
		Expect(t).To(Equal(1.5))

		_, err = ParseTime("-1s")
		Expect(err).To(HaveOccurred())

		_, err = ParseTime("soon")
		Expect(err).To(HaveOccurred())
	})
})
