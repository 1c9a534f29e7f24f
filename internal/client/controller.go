// Package client drives the view renderer for the local player.
package client

import (
	"voxelview.ai/internal/env"
	"voxelview.ai/internal/geom"
	"voxelview.ai/internal/render"
)

const (
	DebugInfoOff = iota
	DebugInfoText
	DebugInfoVisuals

	debugInfoLevels = 3
)

// Controller owns the player viewport and forwards frames to the renderer.
type Controller struct {
	m        *env.Map
	renderer *render.ViewRenderer
	camera   *Camera
	viewport *geom.Viewport

	displayW, displayH int
	debugLevel         int
}

func NewController(m *env.Map, renderer *render.ViewRenderer, width, height int) *Controller {
	return &Controller{
		m:        m,
		renderer: renderer,
		viewport: geom.NewViewport(),
		displayW: width,
		displayH: height,
	}
}

func (c *Controller) SetCamera(cam *Camera) { c.camera = cam }
func (c *Controller) Camera() *Camera       { return c.camera }

func (c *Controller) Viewport() *geom.Viewport { return c.viewport }

func (c *Controller) DebugLevel() int { return c.debugLevel }

func (c *Controller) SetDebugLevel(level int) {
	if level < DebugInfoOff || level >= debugInfoLevels {
		level = DebugInfoOff
	}
	c.debugLevel = level
	if c.renderer != nil {
		c.renderer.SetDebugVisuals(level >= DebugInfoVisuals)
	}
}

// CycleDebugInfo steps none -> text -> text+visuals -> none.
func (c *Controller) CycleDebugInfo() int {
	c.SetDebugLevel((c.debugLevel + 1) % debugInfoLevels)
	return c.debugLevel
}

// DrawWorld sizes the player viewport and renders the map.
func (c *Controller) DrawWorld(frame render.Frame) {
	vp := c.viewport
	if c.camera != nil {
		vp.SetFar(c.camera.Far())
		vp.SetSize(c.displayW, c.displayH)
		c.camera.CalculateViewport(vp)
	} else {
		vp.SetFar(geom.DefaultFar)
		vp.SetSize(c.displayW, c.displayH)
		vp.Calculate()
	}
	if c.renderer != nil {
		c.renderer.Render(frame, vp)
	}
}

// DebugInfo returns overlay lines, or nil when debug info is off.
func (c *Controller) DebugInfo() []string {
	if c.debugLevel == DebugInfoOff {
		return nil
	}
	lines := []string{c.m.StatisticsString()}
	if c.renderer != nil {
		lines = append(lines, c.renderer.StatisticsString())
	}
	return lines
}
