package events

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("buffer", func() {
	It("pops messages in insertion order", func() {
		buffer := newBuffer()

		size, ok := buffer.PushBack(&message{Kind: JobSubmittedKind, Data: []byte("msg1")})
		Expect(ok).To(BeTrue())
		Expect(size).To(Equal(1))
		size, _ = buffer.PushBack(&message{Kind: JobCompletedKind, Data: []byte("msg2")})
		Expect(size).To(Equal(2))
		Expect(buffer.Size()).To(Equal(2))

		msg := buffer.Pop()
		Expect(msg).NotTo(BeNil())
		Expect(msg.Data).To(Equal([]byte("msg1")))
		Expect(buffer.Size()).To(Equal(1))

		msg = buffer.Pop()
		Expect(msg).NotTo(BeNil())
		Expect(msg.Kind).To(Equal(JobCompletedKind))
		Expect(buffer.Size()).To(Equal(0))
		Expect(buffer.pending).To(BeNil())
	})

	It("returns nil when empty", func() {
		buffer := newBuffer()
		Expect(buffer.Pop()).To(BeNil())

		buffer.PushBack(&message{Kind: JobFailedKind})
		buffer.Pop()
		Expect(buffer.Pop()).To(BeNil())
		Expect(buffer.Size()).To(Equal(0))
	})

	It("refuses messages once closed and keeps the pending ones", func() {
		buffer := newBuffer()
		buffer.PushBack(&message{Kind: JobSubmittedKind})
		buffer.Close()

		_, ok := buffer.PushBack(&message{Kind: JobCompletedKind})
		Expect(ok).To(BeFalse())
		Expect(buffer.Size()).To(Equal(1))
		Expect(buffer.Pop().Kind).To(Equal(JobSubmittedKind))
		Expect(buffer.Pop()).To(BeNil())
	})
})
