package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Chanzhaoyu/nest-blog-api/internal/server/services"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.users.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.ok(w, list, "ok")
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.ok(w, u, "ok")
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	actor, _ := IdentityFrom(r.Context())
	u, err := s.users.UpdateProfile(r.Context(), actor, chi.URLParam(r, "username"), services.UpdateInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Avatar:   req.Avatar,
		Bio:      req.Bio,
		Address:  req.Address,
		Phone:    req.Phone,
		Age:      req.Age,
		Gender:   req.Gender,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.ok(w, u, "profile updated")
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	actor, _ := IdentityFrom(r.Context())
	u, err := s.users.ChangeRole(r.Context(), actor, chi.URLParam(r, "username"), req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.ok(w, u, "role updated")
}

func (s *Server) handleAvatarUpload(w http.ResponseWriter, r *http.Request) {
	actor, _ := IdentityFrom(r.Context())
	up, err := s.users.AvatarUploadURL(r.Context(), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.created(w, up, "upload url created")
}
