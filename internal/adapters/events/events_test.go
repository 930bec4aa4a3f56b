package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/okian/poolscore/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error { return errors.New("broker down") }
func (failingPublisher) Close() error                              { return nil }

func TestPublisher(t *testing.T) {
	Convey("Given a publisher on an in-process channel", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		ch := NewGoChannel(8, nil)
		defer ch.Close()
		pub := NewPublisher(ch, WithTopic("test.winners"))
		So(pub.Topic(), ShouldEqual, "test.winners")

		msgs, err := ch.Subscribe(ctx, pub.Topic())
		So(err, ShouldBeNil)

		rec := model.WinnerRecord{
			ID:        "rec-1",
			PoolID:    "pool",
			ScopeType: model.ScopeWeek,
			ScopeID:   "2025:regular:4",
			Season:    2025,
			Winners:   []string{"alice", "bob"},
		}

		Convey("When a record is published", func() {
			So(pub.PublishWinner(ctx, rec), ShouldBeNil)

			Convey("Then subscribers receive it with scope metadata", func() {
				var msg *message.Message
				select {
				case msg = <-msgs:
				case <-ctx.Done():
				}
				So(msg, ShouldNotBeNil)
				msg.Ack()

				So(msg.Metadata.Get("pool_id"), ShouldEqual, "pool")
				So(msg.Metadata.Get("scope_id"), ShouldEqual, "2025:regular:4")
				got, err := Decode(msg)
				So(err, ShouldBeNil)
				So(got.Winners, ShouldResemble, []string{"alice", "bob"})
				So(got.ScopeType, ShouldEqual, model.ScopeWeek)
			})
		})
	})

	Convey("Given a broker that rejects messages", t, func() {
		pub := NewPublisher(failingPublisher{})

		Convey("Then the error is returned to the caller", func() {
			err := pub.PublishWinner(context.Background(), model.WinnerRecord{ID: "x"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "broker down")
		})
	})

	Convey("Given a publisher without a broker", t, func() {
		pub := NewPublisher(nil)

		Convey("Then publishing reports it is closed", func() {
			So(errors.Is(pub.PublishWinner(context.Background(), model.WinnerRecord{}), ErrClosed), ShouldBeTrue)
		})
	})

	Convey("Decode rejects garbage", t, func() {
		_, err := Decode(message.NewMessage("id", []byte("{nope")))
		So(err, ShouldNotBeNil)
	})
}
