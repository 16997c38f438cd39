//go:build unix

package compressor

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"

	"github.com/Yazan-Dev9/DataSafe/internal/domain"
)

func TestBuilderIrregularFiles(t *testing.T) {
	Convey("Given a directory whose only child is a FIFO", t, func() {
		builder := New(zap.NewNop().Sugar(), -1)
		src := filepath.Join(t.TempDir(), "Spool")
		So(os.MkdirAll(filepath.Join(src, "queue"), 0755), ShouldBeNil)
		So(os.WriteFile(filepath.Join(src, "readme.txt"), []byte("hi"), 0644), ShouldBeNil)
		So(syscall.Mkfifo(filepath.Join(src, "queue", "pipe"), 0644), ShouldBeNil)

		for _, kind := range []domain.CompressionKind{domain.KindZip, domain.KindTar} {
			Convey("When building a "+kind.String()+" archive", func() {
				dest := filepath.Join(t.TempDir(), "spool"+kind.Extension())
				_, err := builder.Build(context.Background(), src, dest, kind)
				So(err, ShouldBeNil)

				Convey("The FIFO is skipped and its directory kept as empty", func() {
					So(readArchive(t, dest, kind), ShouldResemble, map[string]string{
						"readme.txt": "hi",
						"queue/":     "",
					})
				})
			})
		}
	})
}
