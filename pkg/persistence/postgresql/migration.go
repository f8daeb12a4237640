package postgresql

import "github.com/jigged/shopfloor/pkg/persistence/sqlbase"

func migrations() []sqlbase.Migration {
	return []sqlbase.Migration{
		{
			Version:     1,
			Description: "stations, templates and work orders",
			SQL: `
			-- Station reference data
			CREATE TABLE stations (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			-- Workflow templates, the flow graph is stored as one document
			CREATE TABLE workflow_templates (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				flow JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_templates_created_at ON workflow_templates(created_at);

			-- Work orders
			CREATE TABLE work_orders (
				id VARCHAR(255) PRIMARY KEY,
				order_number VARCHAR(64) NOT NULL UNIQUE,
				template_id VARCHAR(255) NOT NULL REFERENCES workflow_templates(id),
				customer_id VARCHAR(255) NOT NULL,
				sales_person_id VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(20) NOT NULL CHECK (status IN ('requested', 'approved', 'in_progress', 'finished', 'rejected')),
				estimated_price BIGINT NOT NULL,
				actual_price BIGINT,
				requested_at TIMESTAMP WITH TIME ZONE NOT NULL,
				approved_at TIMESTAMP WITH TIME ZONE,
				approved_by VARCHAR(255) NOT NULL DEFAULT '',
				rejected_at TIMESTAMP WITH TIME ZONE,
				rejected_by VARCHAR(255) NOT NULL DEFAULT '',
				rejection_reason TEXT NOT NULL DEFAULT '',
				finished_at TIMESTAMP WITH TIME ZONE,
				current_stations JSONB NOT NULL DEFAULT '[]',
				station_history JSONB NOT NULL DEFAULT '[]',
				version BIGINT NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_work_orders_status ON work_orders(status);
			CREATE INDEX idx_work_orders_template_id ON work_orders(template_id);
			CREATE INDEX idx_work_orders_requested_at ON work_orders(requested_at);
		`,
		},
		{
			Version:     2,
			Description: "index current stations",
			SQL: `
			-- Scan lookups filter on the JSONB station list
			CREATE INDEX idx_work_orders_current_stations ON work_orders USING GIN (current_stations);
		`,
		},
		{
			Version:     3,
			Description: "operator work sessions",
			SQL: `
			CREATE TABLE operator_sessions (
				id VARCHAR(255) PRIMARY KEY,
				operator_id VARCHAR(255) NOT NULL,
				work_order_id VARCHAR(255) NOT NULL REFERENCES work_orders(id),
				station_id VARCHAR(255) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				ended_at TIMESTAMP WITH TIME ZONE,
				end_reason VARCHAR(20) NOT NULL DEFAULT '',
				notes TEXT NOT NULL DEFAULT ''
			);

			-- At most one open session per operator
			CREATE UNIQUE INDEX idx_operator_sessions_active ON operator_sessions(operator_id) WHERE ended_at IS NULL;
			CREATE INDEX idx_operator_sessions_operator_started ON operator_sessions(operator_id, started_at DESC);
		`,
		},
	}
}
