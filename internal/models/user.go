package models

import "time"

// Role определяет уровень доступа пользователя
type Role string

const (
	// RoleAdmin может удалять файлы, смотреть журнал скачиваний и входит без OTP
	RoleAdmin Role = "admin"
	// RoleEmployee обычный сотрудник
	RoleEmployee Role = "employee"
)

// Department is one of the fixed organisational units
type Department string

const (
	DepartmentAdmin    Department = "admin"
	DepartmentHR       Department = "hr"
	DepartmentSales    Department = "sales"
	DepartmentPurchase Department = "purchase"
	DepartmentGodown   Department = "godown"
)

// Departments lists every known department in display order
var Departments = []Department{
	DepartmentAdmin,
	DepartmentHR,
	DepartmentSales,
	DepartmentPurchase,
	DepartmentGodown,
}

// Valid reports whether d is one of the known departments
func (d Department) Valid() bool {
	for _, known := range Departments {
		if d == known {
			return true
		}
	}
	return false
}

// User представляет пользователя в системе
type User struct {
	CreatedAt    time.Time  `json:"created_at"`    // время создания
	UpdatedAt    time.Time  `json:"updated_at"`    // время последнего обновления
	ID           string     `json:"id"`            // UUID пользователя
	Name         string     `json:"name"`          // отображаемое имя
	Email        string     `json:"email"`         // уникальный email (lower-case)
	PasswordHash string     `json:"-"`             // bcrypt хеш пароля
	Department   Department `json:"department"`    // отдел
	Role         Role       `json:"role"`          // admin | employee
}

// IsAdmin reports whether the user bypasses device approval
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
