package queue

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type QueueTestSuite struct {
	suite.Suite

	Queue   Queue[int]
	samples []int
}

func (s *QueueTestSuite) SetupTest() {
	s.samples = []int{1, 2, 3}
}

func (s *QueueTestSuite) TestEnqueueDequeue() {
	for _, v := range s.samples {
		s.True(s.Queue.Enqueue(v))
	}

	s.Equal(uint(len(s.samples)), s.Queue.Len())

	for _, expected := range s.samples {
		actual, err := s.Queue.Dequeue()
		s.NoError(err)
		s.Equal(expected, actual)
	}

	_, err := s.Queue.Dequeue()
	s.ErrorIs(err, ErrQueueEmpty)
}

func (s *QueueTestSuite) TestPeek() {
	s.Queue.Enqueue(s.samples[0])
	s.Queue.Enqueue(s.samples[1])

	peeked, err := s.Queue.Peek()
	s.NoError(err)
	s.Equal(s.samples[0], peeked)

	s.Equal(uint(2), s.Queue.Len())
}

func (s *QueueTestSuite) TestLen() {
	s.Equal(uint(0), s.Queue.Len())

	s.Queue.Enqueue(s.samples[0])
	s.Equal(uint(1), s.Queue.Len())

	_, _ = s.Queue.Dequeue()
	s.Equal(uint(0), s.Queue.Len())
}

func (s *QueueTestSuite) TestClear() {
	for _, v := range s.samples {
		s.Queue.Enqueue(v)
	}

	s.Queue.Clear()
	s.Equal(uint(0), s.Queue.Len())

	_, err := s.Queue.Peek()
	s.ErrorIs(err, ErrQueueEmpty)

	// Still usable after clearing.
	s.Queue.Enqueue(s.samples[2])
	v, err := s.Queue.Dequeue()
	s.NoError(err)
	s.Equal(s.samples[2], v)
}

type NaiveQueueTestSuite struct {
	QueueTestSuite
}

func TestNaiveQueueTestSuite(t *testing.T) {
	suite.Run(t, new(NaiveQueueTestSuite))
}

func (s *NaiveQueueTestSuite) SetupTest() {
	s.QueueTestSuite.SetupTest()
	s.Queue = NewNaive[int](0)
}

func (s *NaiveQueueTestSuite) TestDrain() {
	q := s.Queue.(*NaiveQueue[int])
	for _, v := range s.samples {
		q.Enqueue(v)
	}

	s.Equal(s.samples, q.Drain())
	s.Equal(uint(0), q.Len())
	s.Empty(q.Drain())
}

type CircularQueueTestSuite struct {
	QueueTestSuite
}

func TestCircularQueueTestSuite(t *testing.T) {
	suite.Run(t, new(CircularQueueTestSuite))
}

func (s *CircularQueueTestSuite) SetupTest() {
	s.QueueTestSuite.SetupTest()
	s.Queue = NewCircular[int](uint(len(s.samples)))
}
