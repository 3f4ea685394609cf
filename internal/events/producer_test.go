package events

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var _ = Describe("producer", func() {
	It("writes the messages in order", func() {
		w := newTestWriter()
		ep := NewEventProducer(w, WithSource("qrng-test"))

		Expect(ep.Write(context.TODO(), JobSubmittedKind, bytes.NewReader([]byte(`{"job_id":"1"}`)))).To(Succeed())
		Expect(ep.Publish(context.TODO(), JobCompletedKind, JobEvent{JobID: "1", Status: "done"})).To(Succeed())

		Eventually(w.count).Should(Equal(2))
		messages := w.messages()
		Expect(messages[0].Type()).To(Equal(JobSubmittedKind))
		Expect(messages[0].Source()).To(Equal("qrng-test"))
		Expect(messages[1].Type()).To(Equal(JobCompletedKind))

		var payload JobEvent
		Expect(json.Unmarshal(messages[1].Data(), &payload)).To(Succeed())
		Expect(payload.Status).To(Equal("done"))

		Expect(ep.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
	})

	It("sends the pending messages on close", func() {
		w := newTestWriter()
		ep := NewEventProducer(w)
		for range 50 {
			Expect(ep.Publish(context.TODO(), JobSubmittedKind, JobEvent{})).To(Succeed())
		}
		Expect(ep.Close()).To(Succeed())
		Expect(w.count()).To(Equal(50))
	})

	It("never loses an accepted message when closed concurrently", func() {
		w := newTestWriter()
		ep := NewEventProducer(w)

		var (
			wg       sync.WaitGroup
			lock     sync.Mutex
			accepted int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				for range 100 {
					err := ep.Publish(context.TODO(), JobSubmittedKind, JobEvent{})
					if err != nil {
						Expect(errors.Is(err, ErrProducerClosed)).To(BeTrue())
						return
					}
					lock.Lock()
					accepted++
					lock.Unlock()
				}
			}()
		}
		Expect(ep.Close()).To(Succeed())
		wg.Wait()

		Expect(w.count()).To(Equal(accepted))
	})

	It("refuses messages once closed", func() {
		ep := NewEventProducer(newTestWriter())
		Expect(ep.Close()).To(Succeed())
		err := ep.Publish(context.TODO(), JobSubmittedKind, JobEvent{})
		Expect(errors.Is(err, ErrProducerClosed)).To(BeTrue())
	})

	It("logs the events", func() {
		core, logs := observer.New(zap.InfoLevel)
		DeferCleanup(zap.ReplaceGlobals(zap.New(core)))

		ep := NewEventProducer(&LogWriter{})
		Expect(ep.Publish(context.TODO(), JobCompletedKind, JobEvent{JobID: "3"})).To(Succeed())
		Expect(ep.Close()).To(Succeed())

		entries := logs.FilterMessage("event wrote").All()
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].ContextMap()).To(HaveKeyWithValue("type", JobCompletedKind))
	})

	It("writes json lines", func() {
		var out bytes.Buffer
		ep := NewEventProducer(NewJSONWriter(&out))
		Expect(ep.Publish(context.TODO(), BackendRejectedKind, RejectionEvent{Backend: "ibm_kyiv", Reason: "queue is full"})).To(Succeed())
		Expect(ep.Publish(context.TODO(), JobFailedKind, JobEvent{JobID: "2", Detail: "calibration"})).To(Succeed())
		Expect(ep.Close()).To(Succeed())

		scanner := bufio.NewScanner(&out)
		var types []string
		for scanner.Scan() {
			e := cloudevents.NewEvent()
			Expect(json.Unmarshal(scanner.Bytes(), &e)).To(Succeed())
			types = append(types, e.Type())
		}
		Expect(types).To(Equal([]string{BackendRejectedKind, JobFailedKind}))
	})
})

type testwriter struct {
	lock     sync.Mutex
	received []cloudevents.Event
	closed   bool
}

func newTestWriter() *testwriter {
	return &testwriter{received: []cloudevents.Event{}}
}

func (t *testwriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.received = append(t.received, e)
	return nil
}

func (t *testwriter) Close(_ context.Context) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.closed = true
	return nil
}

func (t *testwriter) count() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.received)
}

func (t *testwriter) messages() []cloudevents.Event {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]cloudevents.Event(nil), t.received...)
}
