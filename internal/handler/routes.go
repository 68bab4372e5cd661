package handler

import "github.com/gin-gonic/gin"

// Routes groups the API handlers mounted under the API prefix.
type Routes struct {
	Courses    *CourseHandler
	Faculty    *FacultyHandler
	Rooms      *RoomHandler
	Timetables *TimetableHandler
}

// Register mounts every API route on group.
func (r Routes) Register(group gin.IRoutes) {
	group.GET("/courses", r.Courses.List)
	group.POST("/courses", r.Courses.Create)
	group.GET("/courses/:id", r.Courses.Get)
	group.PUT("/courses/:id", r.Courses.Update)
	group.DELETE("/courses/:id", r.Courses.Delete)

	group.GET("/faculty", r.Faculty.List)
	group.POST("/faculty", r.Faculty.Create)
	group.GET("/faculty/:id", r.Faculty.Get)
	group.PUT("/faculty/:id", r.Faculty.Update)
	group.DELETE("/faculty/:id", r.Faculty.Delete)

	group.GET("/rooms", r.Rooms.List)
	group.POST("/rooms", r.Rooms.Create)
	group.GET("/rooms/:id", r.Rooms.Get)
	group.PUT("/rooms/:id", r.Rooms.Update)
	group.DELETE("/rooms/:id", r.Rooms.Delete)

	group.POST("/timetables/generate", r.Timetables.Generate)
	group.GET("/timetables", r.Timetables.List)
	group.GET("/timetables/:id", r.Timetables.Get)
	group.PUT("/timetables/:id", r.Timetables.Update)
	group.DELETE("/timetables/:id", r.Timetables.Delete)
	group.POST("/timetables/:id/regenerate", r.Timetables.Regenerate)
	group.POST("/timetables/:id/validate", r.Timetables.Validate)
	group.GET("/timetables/:id/export", r.Timetables.Export)

	group.GET("/grid", r.Timetables.Grid)
}
