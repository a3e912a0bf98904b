// Package repository handles all interactions with the database.
//
// It contains raw SQL queries and methods to fetch, persist,
// or update data, abstracting SQL logic away from the service layer.
//
// Errors for missing rows are wrapped with a "table:<name>:" hint so
// sqlerr.HandleError can name the missing entity in the 404 response.
package repository
