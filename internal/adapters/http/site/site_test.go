package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/leaderboard/internal/app"
	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/pkg/logger"
)

func TestLeaderboardPage(t *testing.T) {
	_ = logger.Init()

	Convey("Given the leaderboard page over a running service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		Register(mux, svc)

		Convey("An empty board renders", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/leaderboard", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
			So(w.Body.String(), ShouldContainSubstring, "No scores yet.")
		})

		Convey("The root redirects to the board", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			So(w.Code, ShouldEqual, http.StatusFound)
			So(w.Header().Get("Location"), ShouldEqual, "/leaderboard")
		})

		Convey("A form submission redirects to the player's page", func() {
			form := url.Values{"playerName": {"  Jo   Lee "}, "level": {"2"}, "score": {"40"}}
			req := httptest.NewRequest(http.MethodPost, "/leaderboard", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusSeeOther)
			loc, err := url.Parse(w.Header().Get("Location"))
			So(err, ShouldBeNil)
			So(loc.Query().Get("page"), ShouldEqual, "0")
			So(loc.Query().Get("level"), ShouldEqual, "2")
			So(loc.Query().Get("player"), ShouldEqual, "Jo Lee")

			Convey("And the redirected page highlights the player", func() {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, loc.String(), nil))
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `class="me"`)
				So(w.Body.String(), ShouldContainSubstring, "Jo Lee is ranked #1")
			})
		})

		Convey("An invalid form re-renders with an error", func() {
			form := url.Values{"playerName": {"Jo"}, "level": {"9"}, "score": {"40"}}
			req := httptest.NewRequest(http.MethodPost, "/leaderboard", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "Please enter a valid player name")
		})

		Convey("Rows are paged", func() {
			for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"} {
				_, err := svc.Submit(ctx, model.Submission{PlayerName: name, Level: 1, Score: 10})
				So(err, ShouldBeNil)
			}
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/leaderboard?level=1&page=1", nil))
			So(w.Body.String(), ShouldContainSubstring, "Page 1 of 2")
			So(w.Body.String(), ShouldContainSubstring, "Next")
		})
	})
}
