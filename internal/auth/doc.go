// Package auth provides accounts, sessions and access control for the library.
//
// Users sign in with a username (or email) and password. Passwords are
// hashed with bcrypt and sessions are kept by scs in SQLite, in memory or in
// Redis. Form posts are protected by gorilla/csrf.
//
// # Configuration
//
//	AUTH_SESSION_SECRET=<hex-32-bytes>  # CSRF key; generated if empty
//	AUTH_SESSION_LIFETIME=24h           # Session duration
//	AUTH_BCRYPT_COST=12                 # bcrypt cost factor
//	AUTH_SECURE_COOKIES=true            # HTTPS-only cookies
//	SESSION_STORE=sqlite                # sqlite, memory or redis
//	REDIS_ADDR=localhost:6379           # used when SESSION_STORE=redis
//
// # Usage
//
//	authService := auth.NewService(db, cfg.Auth)
//	sessions, err := auth.NewSessionManager(sqlDB, cfg.Auth, cfg.Sessions)
//	authMiddleware := auth.NewMiddleware(authService, sessions)
//	router.Use(sessions.SessionLoadSave(), authMiddleware.Handler())
//
// Extract the user in handlers:
//
//	user := auth.GetUser(c)
//	actor := circulation.ActorFor(user)
package auth
