package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/erp-session/guard"
	"github.com/jrsteele09/erp-session/login"
	"github.com/jrsteele09/erp-session/users"
)

// MenuItem is an entry of the dashboard sidebar
type MenuItem struct {
	Label  string
	Icon   string
	Route  string
	Badge  int
	Active bool
}

// SummaryCard is a tile on the dashboard home section
type SummaryCard struct {
	Title string
	Value string
	Icon  string
	Color string
}

var dashboardMenu = []MenuItem{
	{Label: "Home", Icon: "🏠", Route: RouteDashboard},
	{Label: "Profile", Icon: "👤", Route: RouteDashboard + "/profile"},
	{Label: "Courses", Icon: "📚", Route: RouteDashboard + "/courses", Badge: 5},
	{Label: "Grades", Icon: "📊", Route: RouteDashboard + "/grades"},
	{Label: "Schedule", Icon: "🕒", Route: RouteDashboard + "/schedule"},
	{Label: "Messages", Icon: "💬", Route: RouteDashboard + "/messages", Badge: 3},
	{Label: "Settings", Icon: "⚙️", Route: RouteDashboard + "/settings"},
}

var summaryCards = []SummaryCard{
	{Title: "Active Courses", Value: "5", Icon: "📚", Color: "blue"},
	{Title: "Pending Assignments", Value: "3", Icon: "📝", Color: "orange"},
	{Title: "Current Average", Value: "8.5", Icon: "⭐", Color: "green"},
	{Title: "Upcoming Exams", Value: "2", Icon: "📅", Color: "red"},
}

// DashboardPageData contains data for rendering the dashboard
type DashboardPageData struct {
	AppName     string
	Greeting    string
	DisplayName string
	FullName    string
	Initials    string
	Email       string
	Picture     string
	IsAdmin     bool
	IsStaff     bool
	Section     string
	Menu        []MenuItem
	Cards       []SummaryCard
	Notice      *login.Notice
}

// DashboardHandler renders the dashboard (GET /dashboard[/{section}]).
// Sections that are not in the menu are not found.
func (s *Server) DashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil {
			redirect(w, r, guard.LoginURL(r.URL.RequestURI()))
			return
		}

		active := RouteDashboard
		if section := r.PathValue("section"); section != "" {
			active = RouteDashboard + "/" + section
		}
		menu, found := menuFor(active)
		if !found {
			http.NotFound(w, r)
			return
		}

		data := DashboardPageData{
			AppName:     s.config.GetAppName(),
			Greeting:    Greeting(s.nowTime()),
			DisplayName: user.DisplayName(),
			FullName:    user.FullName(),
			Initials:    user.Initials(),
			Email:       user.Email,
			Picture:     user.Picture,
			IsAdmin:     user.HasRole(users.RoleAdmin),
			IsStaff:     user.HasRole(users.RoleStaff),
			Section:     r.PathValue("section"),
			Menu:        menu,
		}
		if data.Section == "" {
			data.Cards = summaryCards
		}
		if notice, ok := s.login.Notices().Current(); ok {
			data.Notice = &notice
		}
		s.render(w, dashboardTemplate, data)
	}
}

// Greeting picks the salutation for the hour of t
func Greeting(t time.Time) string {
	switch hour := t.Hour(); {
	case hour < 12:
		return "Good morning"
	case hour < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

func menuFor(active string) ([]MenuItem, bool) {
	menu := make([]MenuItem, len(dashboardMenu))
	found := false
	for i, item := range dashboardMenu {
		item.Active = item.Route == active
		found = found || item.Active
		menu[i] = item
	}
	return menu, found
}
