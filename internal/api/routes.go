package api

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	streams := s.router.Group("/streams")
	{
		streams.GET("", s.streamHandler.ListStreams)
		streams.POST("", s.streamHandler.StartStream)
		streams.GET("/:id", s.streamHandler.GetStream)
		streams.DELETE("/:id", s.streamHandler.StopStream)
		streams.GET("/:id/frame", s.streamHandler.GetLatestFrame)
		streams.GET("/:id/mjpeg", s.streamHandler.StreamMJPEG)
	}

	events := s.router.Group("/events")
	{
		events.GET("", s.eventHandler.PollEvents)
		events.GET("/recent", s.eventHandler.RecentEvents)
		events.GET("/ws", s.eventHandler.LiveEvents)
	}

	gallery := s.router.Group("/gallery")
	{
		gallery.GET("", s.galleryHandler.GetGallery)
		gallery.POST("/reload", s.galleryHandler.Reload)
	}

	directory := s.router.Group("/directory")
	{
		directory.GET("/rooms", s.directoryHandler.ListRooms)
		directory.GET("/cameras", s.directoryHandler.ListCameras)
	}

	s.router.GET("/history", s.directoryHandler.ListHistory)

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
	}
}
