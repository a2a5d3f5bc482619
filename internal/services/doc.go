// Package services holds cross-cutting helpers shared by the external
// service clients: sentinel errors for classification and context-aware
// error wrapping.
package services
