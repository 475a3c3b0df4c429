package database

const schema = `
CREATE TABLE IF NOT EXISTS generation_logs (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    generation_id CHAR(36) NOT NULL UNIQUE,
    character_name VARCHAR(255) NOT NULL,
    prompt TEXT NOT NULL,
    tier VARCHAR(16) NOT NULL,
    ratio VARCHAR(8) NOT NULL,
    style VARCHAR(32) NOT NULL,
    model VARCHAR(128) NOT NULL,
    image_url TEXT,
    contact_email VARCHAR(255),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS request_timestamps (
    client_key VARCHAR(128) PRIMARY KEY,
    timestamps TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS client_emails (
    client_key VARCHAR(128) PRIMARY KEY,
    email VARCHAR(255) NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);
`
