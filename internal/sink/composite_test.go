package sink_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dgallion1/pagechunk/internal/page"
	"github.com/dgallion1/pagechunk/internal/sink"
	"github.com/dgallion1/pagechunk/internal/sink/mocks"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestComposite_WritesEverySink(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	first := mocks.NewMockSink(ctrl)
	second := mocks.NewMockSink(ctrl)
	c := sink.NewComposite(first, second)

	p := page.Page{ID: "p1"}
	boom := errors.New("disk full")
	first.EXPECT().WritePage(gomock.Any(), p, gomock.Nil(), gomock.Nil()).Return(boom)
	second.EXPECT().WritePage(gomock.Any(), p, gomock.Nil(), gomock.Nil()).Return(nil)

	err := c.WritePage(context.Background(), p, nil, nil)
	assert.True(t, errors.Is(err, boom))
}

func TestComposite_ClosesEverySink(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	first := mocks.NewMockSink(ctrl)
	second := mocks.NewMockSink(ctrl)
	c := sink.NewComposite(first, second)

	summary := sink.Summary{Pages: 1}
	first.EXPECT().Close(gomock.Any(), summary).Return(nil)
	second.EXPECT().Close(gomock.Any(), summary).Return(nil)

	assert.NoError(t, c.Close(context.Background(), summary))
}
