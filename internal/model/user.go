package model

import "time"

// User mirrors the `users` table owned by the identity service.  This
// service only reads it to address notification emails.
//
// Fields:
//  ID        – primary key identifier of the user.
//  Email     – unique email address.
//  Name      – display name.
//  Role      – USER or ADMIN; the same value is carried in access tokens.
//  CreatedAt – timestamp of creation.
type User struct {
    ID        uint64    // users.id
    Email     string    // users.email
    Name      string    // users.name
    Role      string    // users.role
    CreatedAt time.Time // users.created_at
}
